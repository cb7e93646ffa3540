//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/gasmon/internal/device"
)

func newDefaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: go-ble has no backend for %s", device.ErrUnsupported, runtime.GOOS)
}
