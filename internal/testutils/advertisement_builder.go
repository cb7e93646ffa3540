package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/gasmon/internal/device"
)

// Advertisement is a static device.Advertisement used in tests.
type Advertisement struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Rssi        int    `json:"rssi"`
	ServiceList []string
	ManufData   []byte
	TxPower     int
	IsConnect   bool
}

var _ device.Advertisement = (*Advertisement)(nil)

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.ManufData }
func (a *Advertisement) Services() []string       { return a.ServiceList }
func (a *Advertisement) TxPowerLevel() int        { return a.TxPower }
func (a *Advertisement) Connectable() bool        { return a.IsConnect }
func (a *Advertisement) RSSI() int                { return a.Rssi }
func (a *Advertisement) Addr() string             { return a.Address }

// AdvertisementBuilder builds advertisements for scan tests.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement with RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{Rssi: -50, IsConnect: true, TxPower: 127}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "181A") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceList = append(b.adv.ServiceList, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufData = data
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.TxPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnect = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Fields missing from the JSON keep their current value.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name             *string  `json:"name"`
		Address          *string  `json:"address"`
		RSSI             *int     `json:"rssi"`
		Services         []string `json:"services"`
		ManufacturerData []byte   `json:"manufacturerData"`
		TxPower          *int     `json:"txPower"`
		Connectable      *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: %v", err))
	}

	if data.Name != nil {
		b.adv.Name = *data.Name
	}
	if data.Address != nil {
		b.adv.Address = *data.Address
	}
	if data.RSSI != nil {
		b.adv.Rssi = *data.RSSI
	}
	if data.Services != nil {
		b.adv.ServiceList = data.Services
	}
	if data.ManufacturerData != nil {
		b.adv.ManufData = data.ManufacturerData
	}
	if data.TxPower != nil {
		b.adv.TxPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.adv.IsConnect = *data.Connectable
	}
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() *Advertisement {
	adv := b.adv
	adv.ServiceList = append([]string(nil), b.adv.ServiceList...)
	return &adv
}
