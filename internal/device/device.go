package device

import (
	"context"
	"time"
)

// ScanMode trades scan latency for power. Backends that cannot tune the
// radio ignore it.
type ScanMode int

const (
	ScanModeLowPower ScanMode = iota
	ScanModeBalanced
	ScanModeLowLatency
)

func (m ScanMode) String() string {
	switch m {
	case ScanModeLowPower:
		return "low-power"
	case ScanModeBalanced:
		return "balanced"
	case ScanModeLowLatency:
		return "low-latency"
	default:
		return "unknown"
	}
}

// ParseScanMode accepts the String() form of a ScanMode.
func ParseScanMode(s string) (ScanMode, bool) {
	for _, m := range []ScanMode{ScanModeLowPower, ScanModeBalanced, ScanModeLowLatency} {
		if m.String() == s {
			return m, true
		}
	}
	return ScanModeLowLatency, false
}

// ScanParams configures a single adapter scan
type ScanParams struct {
	AllowDuplicates bool
	Mode            ScanMode
}

// Advertisement is a single advertising report seen during a scan
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

// Scanner delivers advertisements until ctx is done or the adapter fails.
// Scan returns nil (or the context error) when stopped through ctx.
type Scanner interface {
	Scan(ctx context.Context, params ScanParams, handler func(Advertisement)) error
}

// Connector opens a GATT link to the peripheral with the given address.
type Connector interface {
	Connect(ctx context.Context, address string) (Link, error)
}

// Adapter is the capability set the session layer needs from a BLE stack.
type Adapter interface {
	Scanner
	Connector
}

// NotificationHandler receives the raw value of one notification.
// Handlers are invoked from stack-owned goroutines and must not block.
type NotificationHandler func(data []byte)

// Link is an established GATT client connection.
type Link interface {
	// Address returns the peer address.
	Address() string

	// DiscoverProfile performs full service and characteristic discovery.
	DiscoverProfile(ctx context.Context) ([]ServiceInfo, error)

	// ExchangeMTU requests mtu and returns the value granted by the stack.
	ExchangeMTU(ctx context.Context, mtu int) (int, error)

	// Subscribe enables notifications (or indications) for a discovered characteristic.
	Subscribe(service, characteristic string, handler NotificationHandler) error

	// Unsubscribe disables notifications for a characteristic.
	Unsubscribe(service, characteristic string) error

	// Disconnected is closed when the link goes down for any reason.
	Disconnected() <-chan struct{}

	// Close terminates the link. Safe to call more than once.
	Close() error
}

// ServiceInfo describes one discovered GATT service
type ServiceInfo struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Characteristics []CharacteristicInfo `json:"characteristics"`
}

// CharacteristicInfo describes one discovered characteristic
type CharacteristicInfo struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name,omitempty"`
	Notify   bool   `json:"notify"`
	Indicate bool   `json:"indicate"`
	Read     bool   `json:"read"`
}

// CanNotify reports whether the characteristic supports notifications or indications
func (c CharacteristicInfo) CanNotify() bool {
	return c.Notify || c.Indicate
}

// FindCharacteristic looks up a characteristic of a service in a discovered profile.
// UUIDs are compared in normalized form.
func FindCharacteristic(profile []ServiceInfo, service, characteristic string) (CharacteristicInfo, error) {
	svcUUID := NormalizeUUID(service)
	charUUID := NormalizeUUID(characteristic)

	for _, svc := range profile {
		if NormalizeUUID(svc.UUID) != svcUUID {
			continue
		}
		for _, ch := range svc.Characteristics {
			if NormalizeUUID(ch.UUID) == charUUID {
				return ch, nil
			}
		}
		return CharacteristicInfo{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}
	return CharacteristicInfo{}, &NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// CountCharacteristics returns the number of characteristics in a profile
func CountCharacteristics(profile []ServiceInfo) int {
	n := 0
	for _, svc := range profile {
		n += len(svc.Characteristics)
	}
	return n
}

// Timeouts bounds each step of establishing a session
type Timeouts struct {
	Connect   time.Duration
	Discovery time.Duration
	MTU       time.Duration
}
