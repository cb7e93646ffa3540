package goble

import (
	"fmt"

	"github.com/srg/gasmon/internal/device"
)

// NormalizeError maps go-ble error strings to the device error taxonomy.
// It handles the messages specific to the go-ble backends and falls back to
// device.NormalizeError for the common ones.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "not implemented"),
		device.ContainsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case device.ContainsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return device.NormalizeError(err)
	}
}
