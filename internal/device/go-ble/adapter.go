// Package goble implements the device abstraction on top of github.com/go-ble/ble.
//
// go-ble drives CoreBluetooth on macOS and raw HCI sockets on Linux.
package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newDefaultDevice

// bleDevice is the part of ble.Device the adapter uses
type bleDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

// Adapter implements device.Adapter with a go-ble device
type Adapter struct {
	dev    bleDevice
	logger *logrus.Logger
}

var _ device.Adapter = (*Adapter)(nil)

// NewAdapter opens the platform BLE device
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return NewAdapterWithDevice(dev, logger), nil
}

// NewAdapterWithDevice wraps an already opened device
func NewAdapterWithDevice(dev bleDevice, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{dev: dev, logger: logger}
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement.
// go-ble has no scan mode control, params.Mode is ignored.
func (a *Adapter) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}

	err := a.dev.Scan(ctx, params.AllowDuplicates, bleHandler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return err
}

// Connect dials the peripheral. Discovery happens later through the returned link.
func (a *Adapter) Connect(ctx context.Context, address string) (device.Link, error) {
	a.logger.WithField("address", address).Debug("Dialing BLE device...")

	client, err := a.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return newLink(client, address, a.logger), nil
}
