package tinygo

import (
	"strings"

	"github.com/srg/gasmon/internal/device"
)

const sigBase = "-0000-1000-8000-00805f9b34fb"

// canonicalUUID expands any accepted UUID form to the dashed 128-bit form
// tinygo's ParseUUID expects.
func canonicalUUID(uuid string) string {
	n := device.NormalizeUUID(uuid)
	switch len(n) {
	case 4:
		return "0000" + n + sigBase
	case 8:
		return n + sigBase
	case 32:
		return strings.Join([]string{n[0:8], n[8:12], n[12:16], n[16:20], n[20:32]}, "-")
	default:
		return n
	}
}
