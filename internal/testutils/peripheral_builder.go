package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/gasmon/internal/bledb"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// MockPeripheral is the result of PeripheralBuilder.Build: an adapter that
// advertises and dials the configured peripheral, plus the link it hands out.
type MockPeripheral struct {
	Address string
	Adapter *mocks.MockAdapter
	Link    *mocks.MockLink
}

// Notify pushes a raw notification for a characteristic.
func (p *MockPeripheral) Notify(service, characteristic string, data []byte) bool {
	return p.Link.Notify(service, characteristic, data)
}

// PeripheralBuilder builds a mocked adapter with one connectable peripheral
type PeripheralBuilder struct {
	address        string
	profile        DeviceProfileConfig
	mtu            int
	advertisements []device.Advertisement

	scanErr      error
	connectErr   error
	discoverErr  error
	mtuErr       error
	subscribeErr map[string]error
	subscribeSeq map[string][]error
	closeGate    <-chan struct{}
}

// NewPeripheralBuilder creates a builder for a peripheral at AA:BB:CC:DD:EE:FF granting MTU 256
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		address:      "AA:BB:CC:DD:EE:FF",
		mtu:          256,
		subscribeErr: make(map[string]error),
		subscribeSeq: make(map[string][]error),
	}
}

// WithAddress sets the peripheral address the adapter accepts in Connect
func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.address = addr
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithMTU sets the MTU the link grants
func (b *PeripheralBuilder) WithMTU(mtu int) *PeripheralBuilder {
	b.mtu = mtu
	return b
}

// WithAdvertisements sets what a scan reports
func (b *PeripheralBuilder) WithAdvertisements(ads ...device.Advertisement) *PeripheralBuilder {
	b.advertisements = append(b.advertisements, ads...)
	return b
}

// WithScanError makes Scan fail right after delivering the advertisements
func (b *PeripheralBuilder) WithScanError(err error) *PeripheralBuilder {
	b.scanErr = err
	return b
}

// WithConnectError makes Connect fail
func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.connectErr = err
	return b
}

// WithDiscoveryError makes DiscoverProfile fail
func (b *PeripheralBuilder) WithDiscoveryError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

// WithSubscribeResults scripts the first Subscribe calls for one characteristic:
// call i returns results[i]. Later calls fall back to WithSubscribeError or success.
func (b *PeripheralBuilder) WithSubscribeResults(characteristic string, results ...error) *PeripheralBuilder {
	key := bledb.NormalizeUUID(characteristic)
	b.subscribeSeq[key] = append(b.subscribeSeq[key], results...)
	return b
}

// WithBlockingClose makes Link.Close wait until release is closed,
// like a stack waiting for the disconnect-complete event.
func (b *PeripheralBuilder) WithBlockingClose(release <-chan struct{}) *PeripheralBuilder {
	b.closeGate = release
	return b
}

// WithMTUError makes ExchangeMTU fail
func (b *PeripheralBuilder) WithMTUError(err error) *PeripheralBuilder {
	b.mtuErr = err
	return b
}

// WithSubscribeError makes Subscribe fail for one characteristic
func (b *PeripheralBuilder) WithSubscribeError(characteristic string, err error) *PeripheralBuilder {
	b.subscribeErr[bledb.NormalizeUUID(characteristic)] = err
	return b
}

// Profile returns the configured profile as the link reports it from DiscoverProfile
func (b *PeripheralBuilder) Profile() []device.ServiceInfo {
	profile := make([]device.ServiceInfo, 0, len(b.profile.Services))
	for _, svc := range b.profile.Services {
		info := device.ServiceInfo{
			UUID: bledb.NormalizeUUID(svc.UUID),
			Name: bledb.LookupService(svc.UUID),
		}
		for _, ch := range svc.Characteristics {
			props := parseCharacteristicProperties(ch.Properties)
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:     bledb.NormalizeUUID(ch.UUID),
				Name:     bledb.LookupCharacteristic(ch.UUID),
				Notify:   props["notify"],
				Indicate: props["indicate"],
				Read:     props["read"],
			})
		}
		profile = append(profile, info)
	}
	return profile
}

// parseCharacteristicProperties splits a comma-separated property list
func parseCharacteristicProperties(props string) map[string]bool {
	if props == "" {
		props = "read,notify"
	}
	out := make(map[string]bool)
	for _, p := range strings.Split(props, ",") {
		out[strings.TrimSpace(strings.ToLower(p))] = true
	}
	return out
}

// Build creates the mocked adapter and link with the configured behavior
func (b *PeripheralBuilder) Build() *MockPeripheral {
	adapter := &mocks.MockAdapter{}
	link := mocks.NewMockLink()

	ads := append([]device.Advertisement(nil), b.advertisements...)
	scanErr := b.scanErr
	adapter.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			handler := args.Get(2).(func(device.Advertisement))
			for _, adv := range ads {
				handler(adv)
			}
			if scanErr == nil {
				<-ctx.Done()
			}
		}).
		Return(scanErr).Maybe()

	if b.connectErr != nil {
		adapter.On("Connect", mock.Anything, b.address).Return(nil, b.connectErr).Maybe()
	} else {
		adapter.On("Connect", mock.Anything, b.address).Return(link, nil).Maybe()
	}

	link.On("Address").Return(b.address).Maybe()
	if b.discoverErr != nil {
		link.On("DiscoverProfile", mock.Anything).Return(nil, b.discoverErr).Maybe()
	} else {
		link.On("DiscoverProfile", mock.Anything).Return(b.Profile(), nil).Maybe()
	}
	link.On("ExchangeMTU", mock.Anything, mock.Anything).Return(b.mtu, b.mtuErr).Maybe()

	for _, svc := range b.profile.Services {
		for _, ch := range svc.Characteristics {
			svcUUID, charUUID := bledb.NormalizeUUID(svc.UUID), bledb.NormalizeUUID(ch.UUID)
			for _, err := range b.subscribeSeq[charUUID] {
				link.On("Subscribe", svcUUID, charUUID).Return(err).Once()
			}
			link.On("Subscribe", svcUUID, charUUID).Return(b.subscribeErr[charUUID]).Maybe()
			link.On("Unsubscribe", svcUUID, charUUID).Return(nil).Maybe()
		}
	}
	link.On("Subscribe", mock.Anything, mock.Anything).
		Return(&device.NotFoundError{Resource: "characteristic"}).Maybe()
	link.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	closeCall := link.On("Close").Return(nil).Maybe()
	if gate := b.closeGate; gate != nil {
		closeCall.Run(func(mock.Arguments) { <-gate })
	}

	return &MockPeripheral{Address: b.address, Adapter: adapter, Link: link}
}

// EnviroSensorProfile is the GATT profile of the reference gas sensor:
// four Environmental Sensing gases plus the vendor olfactory service.
const EnviroSensorProfile = `{
	"services": [
		{
			"uuid": "0000181a-0000-1000-8000-00805f9b34fb",
			"characteristics": [
				{ "uuid": "00002bd1-0000-1000-8000-00805f9b34fb", "properties": "read,notify" },
				{ "uuid": "00002bd2-0000-1000-8000-00805f9b34fb", "properties": "read,notify" },
				{ "uuid": "00002bd3-0000-1000-8000-00805f9b34fb", "properties": "read,notify" },
				{ "uuid": "00002bcf-0000-1000-8000-00805f9b34fb", "properties": "read,notify" }
			]
		},
		{
			"uuid": "de664a17-7db4-449f-97ba-5514e19a9d94",
			"characteristics": [
				{ "uuid": "6a135b89-f360-4f64-86fc-5a14092034b4", "properties": "notify" },
				{ "uuid": "4c28fcb8-d69b-404a-8668-41655d814e7f", "properties": "indicate" },
				{ "uuid": "f8156843-6d98-4ba2-8014-1cf03d7dedb8", "properties": "notify" },
				{ "uuid": "87dc71bd-29a4-4218-a2a7-83fd2a69cc40", "properties": "notify" }
			]
		}
	]
}`
