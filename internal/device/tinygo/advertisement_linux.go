//go:build linux

package tinygo

import (
	"encoding/binary"

	"tinygo.org/x/bluetooth"
)

// payload is the part of bluetooth.AdvertisementPayload the backend reads
type payload interface {
	LocalName() string
	HasServiceUUID(bluetooth.UUID) bool
	ManufacturerData() []bluetooth.ManufacturerDataElement
}

// watchedService pairs a parsed UUID with the string reported to the scanner
type watchedService struct {
	uuid bluetooth.UUID
	text string
}

// advertisement adapts a BlueZ scan result to device.Advertisement.
// BlueZ hands out no list of advertised services, only membership tests, so
// Services reports which of the watched services the peripheral advertises.
type advertisement struct {
	address string
	rssi    int
	payload payload
	watched []watchedService
}

func (a *advertisement) LocalName() string { return a.payload.LocalName() }
func (a *advertisement) RSSI() int         { return a.rssi }
func (a *advertisement) Addr() string      { return a.address }

// TxPowerLevel is not exposed by BlueZ; 127 means unknown
func (a *advertisement) TxPowerLevel() int { return 127 }

// Connectable is not exposed by BlueZ
func (a *advertisement) Connectable() bool { return true }

// ManufacturerData re-encodes the first element in wire order: company ID (LE) then data
func (a *advertisement) ManufacturerData() []byte {
	elems := a.payload.ManufacturerData()
	if len(elems) == 0 {
		return nil
	}
	out := make([]byte, 2, 2+len(elems[0].Data))
	binary.LittleEndian.PutUint16(out, elems[0].CompanyID)
	return append(out, elems[0].Data...)
}

func (a *advertisement) Services() []string {
	var out []string
	for _, w := range a.watched {
		if a.payload.HasServiceUUID(w.uuid) {
			out = append(out, w.text)
		}
	}
	return out
}
