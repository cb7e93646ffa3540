//go:build !linux

package tinygo

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
)

// NewAdapter reports that the BlueZ backend is unavailable on this platform
func NewAdapter(_ *logrus.Logger, _ []string) (device.Adapter, error) {
	return nil, fmt.Errorf("%w: the tinygo backend needs BlueZ, not available on %s", device.ErrUnsupported, runtime.GOOS)
}
