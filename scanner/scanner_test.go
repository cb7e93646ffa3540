//go:build test

package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
	"github.com/srg/gasmon/internal/testutils"
	"github.com/srg/gasmon/scanner"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	suitelib "github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	testutils.MockPeripheralSuite
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.WithPeripheral().
		FromJSON(testutils.EnviroSensorProfile).
		WithAdvertisements(
			testutils.NewAdvertisementBuilder().
				WithAddress("AA:BB:CC:DD:EE:FF").
				WithName("EnviroSensor").
				WithRSSI(-45).
				WithServices("181A").
				WithManufacturerData([]byte{0x59, 0x00}).
				WithTxPower(4).
				Build(),
			// unnamed beacon
			testutils.NewAdvertisementBuilder().
				WithAddress("00:00:00:00:00:01").
				WithRSSI(-90).
				Build(),
			testutils.NewAdvertisementBuilder().
				WithAddress("11:22:33:44:55:66").
				WithName("Thermo").
				WithRSSI(-67).
				WithServices("1809").
				Build(),
			// duplicate report of the first peripheral
			testutils.NewAdvertisementBuilder().
				WithAddress("AA:BB:CC:DD:EE:FF").
				WithName("EnviroSensor").
				WithRSSI(-30).
				Build(),
			testutils.NewAdvertisementBuilder().
				WithAddress("99:88:77:66:55:44").
				WithName("   ").
				Build(),
			testutils.NewAdvertisementBuilder().
				WithAddress("77:66:55:44:33:22").
				WithName("Odor Node").
				WithServices("de664a17-7db4-449f-97ba-5514e19a9d94").
				Build(),
		)

	suite.MockPeripheralSuite.SetupTest()
}

func (suite *ScannerTestSuite) newScanner() *scanner.Scanner {
	s, err := scanner.NewScanner(suite.Peripheral.Adapter, suite.Logger)
	suite.Require().NoError(err)
	return s
}

func (suite *ScannerTestSuite) scanOptions() *scanner.ScanOptions {
	opts := scanner.DefaultScanOptions()
	opts.Duration = 50 * time.Millisecond
	return opts
}

func ids(ps []scanner.Peripheral) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("requires adapter", func() {
		_, err := scanner.NewScanner(nil, suite.Logger)
		suite.Error(err)
	})

	suite.Run("accepts nil logger", func() {
		s, err := scanner.NewScanner(suite.Peripheral.Adapter, nil)
		suite.NoError(err)
		suite.NotNil(s)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.Equal(5*time.Second, opts.Duration)
	suite.False(opts.AllowDuplicates)
	suite.Equal(device.ScanModeLowLatency, opts.Mode)
	suite.Nil(opts.ServiceUUIDs)
	suite.Nil(opts.AllowList)
	suite.Nil(opts.BlockList)
}

func (suite *ScannerTestSuite) TestScanReportsNamedPeripheralsOnceInFirstSeenOrder() {
	// GOAL: Verify dedup by id, unnamed filtering, and first-seen ordering
	//
	// TEST SCENARIO: Adapter reports six advertisements including a duplicate and two unnamed → three peripherals in arrival order

	s := suite.newScanner()

	found, err := s.Scan(context.Background(), suite.scanOptions(), nil)
	suite.Require().NoError(err)

	suite.Equal([]string{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66", "77:66:55:44:33:22"}, ids(found))

	first := found[0]
	suite.Equal("EnviroSensor", first.Name)
	suite.Equal(-45, first.RSSI, "the first report MUST win, later duplicates are ignored")
	suite.Equal([]string{"181a"}, first.Services)
	suite.Equal("Nordic Semiconductor ASA", first.Manufacturer)
	suite.Equal(4, first.TxPower)
	suite.False(first.FirstSeen.IsZero())

	suite.Equal(found, s.Discovered())
}

func (suite *ScannerTestSuite) TestScanFiltering() {
	tests := []struct {
		name     string
		mutate   func(*scanner.ScanOptions)
		expected []string
	}{
		{
			name:     "no filters",
			mutate:   func(*scanner.ScanOptions) {},
			expected: []string{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66", "77:66:55:44:33:22"},
		},
		{
			name:     "block list is case-insensitive",
			mutate:   func(o *scanner.ScanOptions) { o.BlockList = []string{"aa:bb:cc:dd:ee:ff"} },
			expected: []string{"11:22:33:44:55:66", "77:66:55:44:33:22"},
		},
		{
			name:     "allow list",
			mutate:   func(o *scanner.ScanOptions) { o.AllowList = []string{"11:22:33:44:55:66"} },
			expected: []string{"11:22:33:44:55:66"},
		},
		{
			name: "service filter matches short and long forms",
			mutate: func(o *scanner.ScanOptions) {
				o.ServiceUUIDs = []string{"0000181a-0000-1000-8000-00805f9b34fb", "DE664A17-7DB4-449F-97BA-5514E19A9D94"}
			},
			expected: []string{"AA:BB:CC:DD:EE:FF", "77:66:55:44:33:22"},
		},
		{
			name:     "service filter without match",
			mutate:   func(o *scanner.ScanOptions) { o.ServiceUUIDs = []string{"1234"} },
			expected: []string{},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			s := suite.newScanner()
			opts := suite.scanOptions()
			tt.mutate(opts)

			found, err := s.Scan(context.Background(), opts, nil)
			suite.Require().NoError(err)
			suite.Equal(tt.expected, ids(found))
		})
	}
}

func (suite *ScannerTestSuite) TestScanPassesParamsToAdapter() {
	s := suite.newScanner()
	opts := suite.scanOptions()
	opts.AllowDuplicates = true
	opts.Mode = device.ScanModeLowPower

	_, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)

	suite.Peripheral.Adapter.AssertCalled(suite.T(), "Scan", mock.Anything,
		device.ScanParams{AllowDuplicates: true, Mode: device.ScanModeLowPower}, mock.Anything)
}

func (suite *ScannerTestSuite) TestScanProgressPhases() {
	s := suite.newScanner()

	var phases []string
	_, err := s.Scan(context.Background(), suite.scanOptions(), func(phase string) {
		phases = append(phases, phase)
	})

	suite.Require().NoError(err)
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
}

func (suite *ScannerTestSuite) TestScanEmitsEvents() {
	s := suite.newScanner()

	_, err := s.Scan(context.Background(), suite.scanOptions(), nil)
	suite.Require().NoError(err)

	var names []string
	for len(names) < 3 {
		select {
		case ev := <-s.Events():
			suite.Equal(scanner.EventNew, ev.Type)
			names = append(names, ev.Peripheral.Name)
		case <-time.After(suite.TestTimeout):
			suite.FailNow("timed out waiting for device events")
		}
	}
	suite.Equal([]string{"EnviroSensor", "Thermo", "Odor Node"}, names)
}

func (suite *ScannerTestSuite) TestAdapterFailureIsScanFailed() {
	// GOAL: Verify adapter errors surface as ScanFailed while keeping what was found
	//
	// TEST SCENARIO: Adapter delivers advertisements then reports powered-off → ScanFailed wrapping ErrBluetoothOff

	peripheral := testutils.DefaultSensorBuilder().
		WithScanError(errors.New("adapter is powered off")).
		Build()
	s, err := scanner.NewScanner(peripheral.Adapter, suite.Logger)
	suite.Require().NoError(err)

	found, err := s.Scan(context.Background(), suite.scanOptions(), nil)

	suite.ErrorIs(err, fault.ErrScanFailed)
	suite.ErrorIs(err, device.ErrBluetoothOff)
	suite.Len(found, 1)
	suite.False(s.Scanning())
}

func (suite *ScannerTestSuite) TestStopIsIdempotentAndEndsScanEarly() {
	// GOAL: Verify Stop ends an indefinite scan and can be repeated safely
	//
	// TEST SCENARIO: Scan without duration, Stop twice, Stop again after completion → scan returns results without error

	s := suite.newScanner()
	s.Stop() // no scan yet

	opts := suite.scanOptions()
	opts.Duration = 0

	var (
		found []scanner.Peripheral
		err   error
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		found, err = s.Scan(context.Background(), opts, nil)
	}()

	suite.Eventually(s.Scanning, "scan MUST start")
	suite.Eventually(func() bool { return len(s.Discovered()) == 3 })

	s.Stop()
	s.Stop()
	wg.Wait()
	s.Stop()

	suite.NoError(err)
	suite.Len(found, 3)
	suite.False(s.Scanning())
}

func (suite *ScannerTestSuite) TestNewScanStopsPrevious() {
	s := suite.newScanner()

	opts := suite.scanOptions()
	opts.Duration = 0

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background(), opts, nil)
		firstDone <- err
	}()
	suite.Eventually(s.Scanning)

	found, err := s.Scan(context.Background(), suite.scanOptions(), nil)
	suite.Require().NoError(err)
	suite.Len(found, 3)

	select {
	case err := <-firstDone:
		suite.NoError(err, "a superseded scan MUST end quietly")
	case <-time.After(suite.TestTimeout):
		suite.FailNow("first scan was not stopped")
	}
}

func (suite *ScannerTestSuite) TestParentContextCancellation() {
	s := suite.newScanner()

	ctx, cancel := context.WithCancel(context.Background())
	opts := suite.scanOptions()
	opts.Duration = 0

	go func() {
		suite.Eventually(s.Scanning)
		cancel()
	}()

	found, err := s.Scan(ctx, opts, nil)
	suite.ErrorIs(err, context.Canceled)
	suite.Len(found, 3)
}

func (suite *ScannerTestSuite) TestLookup() {
	s := suite.newScanner()
	_, err := s.Scan(context.Background(), suite.scanOptions(), nil)
	suite.Require().NoError(err)

	p, ok := s.Lookup("aa:bb:cc:dd:ee:ff")
	suite.True(ok)
	suite.Equal("EnviroSensor", p.DisplayName())

	_, ok = s.Lookup("00:00:00:00:00:01")
	suite.False(ok, "unnamed peripherals MUST NOT be retained")
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}

func TestPeripheralDisplayName(t *testing.T) {
	require.Equal(t, "AA", scanner.Peripheral{ID: "AA"}.DisplayName())
	require.Equal(t, "Sensor", scanner.Peripheral{ID: "AA", Name: "Sensor"}.DisplayName())
}
