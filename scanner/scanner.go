package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
	"github.com/srg/gasmon/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks what happened to a peripheral during a scan
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
)

type DeviceEvent struct {
	Type       DeviceEventType
	Peripheral Peripheral
}

// Peripheral is an immutable handle to a discovered, named BLE peripheral.
type Peripheral struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RSSI             int       `json:"rssi"`
	TxPower          int       `json:"tx_power,omitempty"`
	Connectable      bool      `json:"connectable"`
	Services         []string  `json:"services,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
}

// DisplayName returns the name, or the id when the name is blank.
func (p Peripheral) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration   `default:"5s"`
	AllowDuplicates bool            `default:"false"`
	Mode            device.ScanMode `default:"2"`
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	opts := &ScanOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// Scanner discovers named BLE peripherals.
// At most one scan runs at a time; starting a new one stops the previous scan first.
type Scanner struct {
	adapter device.Scanner
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger
	now     func() time.Time

	mu         sync.Mutex
	discovered *orderedmap.OrderedMap[string, Peripheral]
	run        uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScanner creates a new BLE scanner on top of the given adapter
func NewScanner(adapter device.Scanner, logger *logrus.Logger) (*Scanner, error) {
	if adapter == nil {
		return nil, errors.New("scanner: adapter is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		adapter:    adapter,
		events:     ringchan.New[DeviceEvent](100),
		logger:     logger,
		now:        time.Now,
		discovered: orderedmap.New[string, Peripheral](),
	}, nil
}

// Scan performs BLE discovery with the provided options and returns the
// named peripherals in first-seen order once the duration elapses or Stop is called.
//
// Cancelling ctx ends the scan early and returns what was found together with ctx.Err().
// Adapter failures are reported as fault.ErrScanFailed.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Peripheral, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	runCtx, run, done := s.begin(ctx, opts.Duration)
	defer s.finish(run, done)

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"mode":     opts.Mode.String(),
	}).Info("Starting BLE scan...")

	progressCallback("Scanning")

	params := device.ScanParams{AllowDuplicates: opts.AllowDuplicates, Mode: opts.Mode}
	err := s.adapter.Scan(runCtx, params, s.advertisementHandler(runCtx, run, opts))

	found := s.Discovered()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.WithError(err).Error("BLE scan failed")
		return found, fault.ScanFailed(device.NormalizeError(err))
	}

	s.logger.WithField("device_count", len(found)).Info("BLE scan completed")

	progressCallback("Processing results")

	if ctx.Err() != nil {
		return found, ctx.Err()
	}
	return found, nil
}

// begin stops any scan in progress and registers a new run.
func (s *Scanner) begin(parent context.Context, d time.Duration) (context.Context, uint64, chan struct{}) {
	for {
		s.mu.Lock()
		if s.cancel == nil {
			break
		}
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		cancel()
		<-done
	}
	defer s.mu.Unlock()

	var ctx context.Context
	var cancel context.CancelFunc
	if d > 0 {
		ctx, cancel = context.WithTimeout(parent, d)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.run++
	s.discovered = orderedmap.New[string, Peripheral]()
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, s.run, s.done
}

func (s *Scanner) finish(run uint64, done chan struct{}) {
	s.mu.Lock()
	if s.run == run && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	close(done)
}

// Stop ends the active scan and waits for it to wind down.
// Calling Stop without an active scan is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Scanning reports whether a scan is in progress
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// advertisementHandler returns the callback for a single run.
// Reports arriving after the run ended are dropped.
func (s *Scanner) advertisementHandler(ctx context.Context, run uint64, opts *ScanOptions) func(device.Advertisement) {
	return func(adv device.Advertisement) {
		if ctx.Err() != nil {
			return
		}

		name := strings.TrimSpace(adv.LocalName())
		if name == "" {
			return
		}
		if !shouldIncludeDevice(adv, opts) {
			return
		}

		id := adv.Addr()

		s.mu.Lock()
		if s.run != run {
			s.mu.Unlock()
			return
		}
		if _, exists := s.discovered.Get(id); exists {
			s.mu.Unlock()
			return
		}
		p := newPeripheral(adv, name, s.now())
		s.discovered.Set(id, p)
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"device":  p.Name,
			"address": p.ID,
			"rssi":    p.RSSI,
		}).Info("Discovered new device")

		s.events.ForceSend(DeviceEvent{Type: EventNew, Peripheral: p})
	}
}

func newPeripheral(adv device.Advertisement, name string, seen time.Time) Peripheral {
	md := adv.ManufacturerData()
	return Peripheral{
		ID:               adv.Addr(),
		Name:             name,
		RSSI:             adv.RSSI(),
		TxPower:          adv.TxPowerLevel(),
		Connectable:      adv.Connectable(),
		Services:         device.NormalizeUUIDs(adv.Services()),
		ManufacturerData: append([]byte(nil), md...),
		Manufacturer:     device.ManufacturerName(md),
		FirstSeen:        seen,
	}
}

// shouldIncludeDevice applies the allow, block and service filters
func shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		advertised := device.NormalizeUUIDs(adv.Services())
		for _, required := range device.NormalizeUUIDs(opts.ServiceUUIDs) {
			for _, u := range advertised {
				if u == required {
					return true
				}
			}
		}
		return false
	}

	return true
}

// Discovered returns a snapshot of the peripherals found by the latest scan, in first-seen order
func (s *Scanner) Discovered() []Peripheral {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Peripheral, 0, s.discovered.Len())
	for pair := s.discovered.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Lookup returns a peripheral found by the latest scan
func (s *Scanner) Lookup(id string) (Peripheral, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.discovered.Get(id); ok {
		return p, true
	}
	for pair := s.discovered.Oldest(); pair != nil; pair = pair.Next() {
		if strings.EqualFold(pair.Key, id) {
			return pair.Value, true
		}
	}
	return Peripheral{}, false
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
