//go:build linux

package tinygo

import (
	"fmt"

	"github.com/srg/gasmon/internal/device"
)

// NormalizeError maps BlueZ D-Bus errors to the device error taxonomy
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotReady"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotSupported"):
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.AlreadyConnected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case device.ContainsIgnoreCase(msg, "no such adapter"),
		device.ContainsIgnoreCase(msg, "org.freedesktop.DBus.Error.ServiceUnknown"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return device.NormalizeError(err)
	}
}
