//go:build linux

package permission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// sysfsGate inspects /sys for controllers and rfkill state and checks the
// capabilities the HCI user channel needs.
type sysfsGate struct {
	root string
	euid func() int
	caps func() (uint32, error)
}

// Default returns the gate for the running platform.
func Default() Gate {
	return &sysfsGate{root: "/sys", euid: os.Geteuid, caps: effectiveCaps}
}

func (g *sysfsGate) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	controllers, err := filepath.Glob(filepath.Join(g.root, "class", "bluetooth", "hci*"))
	if err != nil || len(controllers) == 0 {
		return ErrNoController
	}

	if blocked, name := g.rfkillBlocked(); blocked {
		return fmt.Errorf("%w: %s", ErrBlocked, name)
	}

	if g.euid() == 0 {
		return nil
	}
	effective, err := g.caps()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if effective&(1<<unix.CAP_NET_ADMIN) == 0 {
		return fmt.Errorf("%w: CAP_NET_ADMIN is required (run as root or setcap cap_net_admin+eip)", ErrPermissionDenied)
	}
	return nil
}

// rfkillBlocked reports the first bluetooth rfkill switch that is soft or hard blocked
func (g *sysfsGate) rfkillBlocked() (bool, string) {
	switches, _ := filepath.Glob(filepath.Join(g.root, "class", "rfkill", "rfkill*"))
	for _, sw := range switches {
		if readTrimmed(filepath.Join(sw, "type")) != "bluetooth" {
			continue
		}
		if readTrimmed(filepath.Join(sw, "soft")) == "1" || readTrimmed(filepath.Join(sw, "hard")) == "1" {
			return true, filepath.Base(sw)
		}
	}
	return false, ""
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func effectiveCaps() (uint32, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return 0, err
	}
	return data[0].Effective, nil
}
