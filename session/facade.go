package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
	"github.com/srg/gasmon/internal/permission"
	"github.com/srg/gasmon/internal/store"
	"github.com/srg/gasmon/scanner"
)

// Options configures a Facade
type Options struct {
	ConnectTimeout   time.Duration `default:"10s"`
	DiscoveryTimeout time.Duration `default:"15s"`
	MTUTimeout       time.Duration `default:"5s"`
	RequestedMTU     int           `default:"256"`
	QueueSize        uint32        `default:"64"`

	// Scan is used by Scan; nil means scanner.DefaultScanOptions()
	Scan *scanner.ScanOptions
	// Gate runs before each scan; nil means permission.Default()
	Gate permission.Gate
}

// DefaultOptions returns the default session options
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// ScanResult is the outcome of a completed scan.
type ScanResult struct {
	Peripherals []scanner.Peripheral
	// Warning is set when the permission gate failed; the scan still ran.
	Warning error
}

// Facade is the single entry point for scanning, connecting to one gas
// sensor, monitoring its channels and reading the latest values.
//
// All methods are safe for concurrent use.
type Facade struct {
	logger *logrus.Logger
	opts   *Options
	gate   permission.Gate

	scanner *scanner.Scanner
	store   *store.Store
	subs    *subscriptionEngine
	conn    *connectionManager
	fsm     *machine

	// opMu serializes monitor and teardown sequences against each other
	opMu sync.Mutex

	// cmu guards the in-flight connect
	cmu           sync.Mutex
	connectCancel context.CancelFunc
	connectDone   chan struct{}

	scanMu  sync.Mutex
	scanSeq uint64
	scans   map[uint64]*scanRun
}

// scanRun is a Scan call in flight
type scanRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Facade over a BLE adapter.
func New(adapter device.Adapter, logger *logrus.Logger, opts *Options) (*Facade, error) {
	if adapter == nil {
		return nil, errors.New("session: adapter is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	} else {
		o := *opts
		defaults.SetDefaults(&o)
		opts = &o
	}
	if opts.Scan == nil {
		opts.Scan = scanner.DefaultScanOptions()
	}

	gate := opts.Gate
	if gate == nil {
		gate = permission.Default()
	}

	sc, err := scanner.NewScanner(adapter, logger)
	if err != nil {
		return nil, err
	}

	st := store.New()
	subs := newSubscriptionEngine(st, logger, opts.QueueSize)
	timeouts := device.Timeouts{
		Connect:   opts.ConnectTimeout,
		Discovery: opts.DiscoveryTimeout,
		MTU:       opts.MTUTimeout,
	}

	return &Facade{
		logger:  logger,
		opts:    opts,
		gate:    gate,
		scanner: sc,
		store:   st,
		subs:    subs,
		conn:    newConnectionManager(adapter, st, subs, logger, timeouts, opts.RequestedMTU),
		fsm:     newMachine(logger),
		scans:   make(map[uint64]*scanRun),
	}, nil
}

// OnStateChange registers an observer called after every state transition.
// Observers run on the goroutine that caused the transition and must not block.
func (f *Facade) OnStateChange(o StateObserver) {
	f.fsm.observe(o)
}

// State returns the current lifecycle state
func (f *Facade) State() State {
	return f.fsm.current()
}

// Scanner exposes the underlying scanner, e.g. for its event stream
func (f *Facade) Scanner() *scanner.Scanner {
	return f.scanner
}

// Scan discovers named peripherals for the configured duration.
// It fails with SessionAlreadyActive while a session exists. Starting a scan
// while another is running replaces it.
func (f *Facade) Scan(ctx context.Context, progress scanner.ProgressCallback) (*ScanResult, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &scanRun{cancel: cancel, done: make(chan struct{})}

	// Registration and the transition happen together so Teardown sees every
	// scan that has left Idle.
	f.scanMu.Lock()
	if _, err := f.fsm.transitionFrom([]State{StateIdle, StateScanning}, StateScanning); err != nil {
		// A running scan is replaced by the scanner itself.
		var te *TransitionError
		if !errors.As(err, &te) || te.From != StateScanning {
			f.scanMu.Unlock()
			return nil, f.sessionAlreadyActive(err)
		}
	}
	f.scanSeq++
	seq := f.scanSeq
	f.scans[seq] = run
	f.scanMu.Unlock()

	defer func() {
		f.scanMu.Lock()
		delete(f.scans, seq)
		f.scanMu.Unlock()
		close(run.done)
	}()

	result := &ScanResult{}
	if err := f.gate.Check(scanCtx); err != nil && scanCtx.Err() == nil {
		f.logger.WithError(err).Warn("Bluetooth permission check failed, scanning anyway")
		result.Warning = err
	}

	var (
		peripherals []scanner.Peripheral
		err         error
	)
	if err = scanCtx.Err(); err == nil {
		peripherals, err = f.scanner.Scan(scanCtx, f.opts.Scan, progress)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// ended by Teardown, which reports like StopScan
		err = nil
	}
	result.Peripherals = peripherals

	f.scanMu.Lock()
	if seq == f.scanSeq {
		// Connect may already have moved the machine on
		_, _ = f.fsm.transitionFrom([]State{StateScanning}, StateIdle)
	}
	f.scanMu.Unlock()

	return result, err
}

// StopScan ends an active scan early. No-op without one.
func (f *Facade) StopScan() {
	f.scanner.Stop()
}

// Connect establishes the session with a peripheral found by the last scan,
// or with any address the backend can dial directly. A running scan is
// stopped first. Only one session may exist: connecting while one exists
// (to the same or a different peripheral) fails with SessionAlreadyActive.
func (f *Facade) Connect(ctx context.Context, peripheralID string) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.cmu.Lock()
	prev, err := f.fsm.transitionFrom([]State{StateIdle, StateScanning}, StateConnecting)
	if err != nil {
		f.cmu.Unlock()
		return nil, f.sessionAlreadyActive(err)
	}
	done := make(chan struct{})
	f.connectCancel, f.connectDone = cancel, done
	f.cmu.Unlock()

	defer func() {
		f.cmu.Lock()
		f.connectCancel, f.connectDone = nil, nil
		f.cmu.Unlock()
		close(done)
	}()

	if prev == StateScanning {
		f.scanner.Stop()
	}

	p, ok := f.scanner.Lookup(peripheralID)
	if !ok {
		p = scanner.Peripheral{ID: peripheralID}
	}

	s, err := f.conn.connect(ctx, p)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"address": peripheralID,
			"error":   err,
		}).Error("Connection failed")
		_ = f.fsm.transition(StateIdle)
		return nil, err
	}

	f.subs.resetStats()
	_ = f.fsm.transition(StateConnected)
	f.conn.watch(s, f.handleLinkLost)

	out := *s
	return &out, nil
}

// Session returns the live session, if any
func (f *Facade) Session() (*Session, bool) {
	s := f.conn.current()
	if s == nil {
		return nil, false
	}
	out := *s
	return &out, true
}

// Monitor subscribes to the given channels on the live session. Each channel
// is started independently; per-channel failures are in the result.
// Channels already monitored are replaced. Fails with NoActiveSession
// unless connected.
func (f *Facade) Monitor(ctx context.Context, chans []channels.Channel) (*MonitorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chans) == 0 {
		return nil, errors.New("no channels to monitor")
	}

	f.opMu.Lock()
	defer f.opMu.Unlock()

	st := f.fsm.current()
	s := f.conn.current()
	if (st != StateConnected && st != StateMonitoring) || s == nil {
		return nil, fault.NoActiveSession(fmt.Sprintf("cannot monitor while %s", st))
	}

	result := f.subs.start(s, chans)
	active := len(f.subs.active()) > 0
	switch {
	case st == StateConnected && active:
		_ = f.fsm.transition(StateMonitoring)
	case st == StateMonitoring && !active:
		_ = f.fsm.transition(StateConnected)
	}

	f.logger.WithFields(logrus.Fields{
		"session_id": s.ID.String(),
		"started":    len(result.Started),
		"failed":     len(result.Failed),
	}).Info("Monitoring channels")
	return result, nil
}

// Monitored returns the labels with a live subscription
func (f *Facade) Monitored() []string {
	return f.subs.active()
}

// Stats returns per-label subscription counters of the current or last session
func (f *Facade) Stats() map[string]SubscriptionStats {
	return f.subs.stats()
}

// StopMonitoring cancels every channel subscription and keeps the session.
// No store write for the cancelled subscriptions happens once it returns.
func (f *Facade) StopMonitoring() {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	if f.fsm.current() != StateMonitoring {
		return
	}
	if s := f.conn.current(); s != nil {
		f.subs.stopAll(s.link)
	}
	_, _ = f.fsm.transitionFrom([]State{StateMonitoring}, StateConnected)
}

// Disconnect ends the session: subscriptions, then the link, then the store.
// No-op without a session.
func (f *Facade) Disconnect() error {
	f.opMu.Lock()
	defer f.opMu.Unlock()
	return f.disconnectLocked("requested")
}

func (f *Facade) disconnectLocked(reason string) error {
	if _, err := f.fsm.transitionFrom([]State{StateConnected, StateMonitoring}, StateDisconnecting); err != nil {
		return nil
	}

	_, err := f.conn.release(f.conn.current(), reason)
	_ = f.fsm.transition(StateIdle)
	return err
}

// handleLinkLost runs the disconnect path for a peripheral-initiated drop
func (f *Facade) handleLinkLost(s *Session) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	if f.conn.current() != s {
		return
	}
	if err := f.disconnectLocked("peripheral disconnected"); err != nil {
		f.logger.WithError(err).Debug("Link close after peripheral disconnect reported an error")
	}
}

// LatestValues returns a snapshot of the newest reading per label.
// Empty when no session is active.
func (f *Facade) LatestValues() map[string]store.Reading {
	return f.store.GetAll()
}

// Latest returns the newest reading of one label
func (f *Facade) Latest(label string) (store.Reading, bool) {
	return f.store.Get(label)
}

// Stale returns the labels whose reading is older than maxAge
func (f *Facade) Stale(maxAge time.Duration) []string {
	return f.store.Stale(maxAge)
}

// Teardown stops everything and returns to Idle. Safe from any state.
// No scan begun before Teardown returns is still running afterwards.
func (f *Facade) Teardown() error {
	f.stopScans()

	f.cmu.Lock()
	cancel, done := f.connectCancel, f.connectDone
	f.cmu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	f.opMu.Lock()
	defer f.opMu.Unlock()

	err := f.disconnectLocked("teardown")

	// A scan started concurrently with teardown is ended too.
	f.stopScans()
	f.logger.Debug("Session teardown completed")
	return err
}

// stopScans cancels every Scan call in flight and waits for each to return
func (f *Facade) stopScans() {
	f.scanMu.Lock()
	runs := make([]*scanRun, 0, len(f.scans))
	for _, run := range f.scans {
		runs = append(runs, run)
	}
	f.scanMu.Unlock()

	for _, run := range runs {
		run.cancel()
		<-run.done
	}
}

func (f *Facade) sessionAlreadyActive(err error) error {
	if s := f.conn.current(); s != nil {
		return fault.SessionAlreadyActive(fmt.Sprintf("connected to %s", s.Peripheral.ID))
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return fault.SessionAlreadyActive(fmt.Sprintf("session is %s", te.From))
	}
	return fault.SessionAlreadyActive(err.Error())
}
