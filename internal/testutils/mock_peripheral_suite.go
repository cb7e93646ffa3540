//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
	"github.com/stretchr/testify/suite"
)

// MockPeripheralSuite provides a reusable test suite with a mocked BLE adapter.
//
// Every test gets a fresh MockPeripheral built from PeripheralBuilder. By default
// it is the reference gas sensor ("EnviroSensor") advertising at AA:BB:CC:DD:EE:FF
// with the full two-service gas profile.
//
// Custom device profile usage:
//
//	type ConnectSuite struct {
//	    testutils.MockPeripheralSuite
//	}
//
//	func (s *ConnectSuite) SetupTest() {
//	    // Configure the peripheral first
//	    s.WithPeripheral().
//	        WithService("181A").
//	        WithCharacteristic("2BD1", "notify").
//	        WithMTUError(errors.New("mtu refused"))
//
//	    s.MockPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// TestTimeout bounds waits on asynchronous behavior
	TestTimeout time.Duration

	// PeripheralBuilder is consumed by SetupTest; nil means the default sensor
	PeripheralBuilder *PeripheralBuilder

	// Peripheral is built fresh for each test
	Peripheral *MockPeripheral
}

// SetupSuite initializes the test suite.
// Called once before all tests in the suite.
func (s *MockPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second

	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds the mock peripheral before each test.
func (s *MockPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = DefaultSensorBuilder()
	}
	s.Peripheral = s.PeripheralBuilder.Build()

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the peripheral builder after each test.
func (s *MockPeripheralSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
// Use this method to configure custom device profiles in the test setup.
func (s *MockPeripheralSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// Eventually waits for cond using the suite timeout.
func (s *MockPeripheralSuite) Eventually(cond func() bool, msgAndArgs ...interface{}) bool {
	return s.Suite.Eventually(cond, s.TestTimeout, 5*time.Millisecond, msgAndArgs...)
}

// DefaultSensorBuilder configures the reference gas sensor with a scan
// that reports it alongside an unnamed beacon.
func DefaultSensorBuilder() *PeripheralBuilder {
	return NewPeripheralBuilder().
		FromJSON(EnviroSensorProfile).
		WithAdvertisements(
			NewAdvertisementBuilder().
				WithAddress("AA:BB:CC:DD:EE:FF").
				WithName("EnviroSensor").
				WithRSSI(-48).
				WithServices("181A").
				WithManufacturerData([]byte{0x59, 0x00, 0x01, 0x02}).
				Build(),
			NewAdvertisementBuilder().
				WithAddress("11:22:33:44:55:66").
				WithRSSI(-80).
				Build(),
		)
}

var _ device.Advertisement = (*Advertisement)(nil)
