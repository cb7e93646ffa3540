package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
	"github.com/srg/gasmon/internal/groutine"
	"github.com/srg/gasmon/internal/store"
	"github.com/srg/gasmon/scanner"
)

// DefaultMTU is the ATT MTU assumed when the stack cannot negotiate one
const DefaultMTU = 23

// Session is an established connection to one peripheral.
// Fields are fixed once the session exists.
type Session struct {
	ID          uuid.UUID            `json:"id"`
	Peripheral  scanner.Peripheral   `json:"peripheral"`
	MTU         int                  `json:"mtu"`
	Profile     []device.ServiceInfo `json:"profile"`
	ConnectedAt time.Time            `json:"connected_at"`

	gen  store.Generation
	link device.Link
	done chan struct{}
}

// connectionManager owns the single live session.
type connectionManager struct {
	adapter  device.Connector
	store    *store.Store
	subs     *subscriptionEngine
	logger   *logrus.Logger
	timeouts device.Timeouts
	mtu      int

	connMutex sync.RWMutex
	session   *Session
}

func newConnectionManager(adapter device.Connector, st *store.Store, subs *subscriptionEngine, logger *logrus.Logger, timeouts device.Timeouts, mtu int) *connectionManager {
	return &connectionManager{
		adapter:  adapter,
		store:    st,
		subs:     subs,
		logger:   logger,
		timeouts: timeouts,
		mtu:      mtu,
	}
}

// withTimeout derives a step context; zero means no step deadline
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// connect dials the peripheral, discovers its profile and negotiates the MTU.
// The session is registered only when every step succeeded; on failure the
// link is closed and no session remains.
func (m *connectionManager) connect(ctx context.Context, p scanner.Peripheral) (*Session, error) {
	m.connMutex.RLock()
	active := m.session
	m.connMutex.RUnlock()
	if active != nil {
		return nil, fault.SessionAlreadyActive(fmt.Sprintf("connected to %s", active.Peripheral.ID))
	}

	log := m.logger.WithField("address", p.ID)
	log.Info("Connecting to BLE device...")

	dialCtx, cancel := withTimeout(ctx, m.timeouts.Connect)
	link, err := m.adapter.Connect(dialCtx, p.ID)
	cancel()
	if err != nil {
		return nil, fault.ConnectionFailed("connect", stepError(dialCtx, err))
	}

	fail := func(step string, err error) (*Session, error) {
		if cerr := link.Close(); cerr != nil {
			log.WithError(cerr).Debug("Failed to close link after connection failure")
		}
		return nil, fault.ConnectionFailed(step, err)
	}

	discCtx, cancel := withTimeout(ctx, m.timeouts.Discovery)
	profile, err := link.DiscoverProfile(discCtx)
	cancel()
	if err != nil {
		return fail("discover services", stepError(discCtx, err))
	}

	mtuCtx, cancel := withTimeout(ctx, m.timeouts.MTU)
	mtu, err := link.ExchangeMTU(mtuCtx, m.mtu)
	cancel()
	switch {
	case errors.Is(err, device.ErrUnsupported):
		log.Debug("MTU exchange not supported by the stack, using default")
		mtu = DefaultMTU
	case err != nil:
		return fail("exchange MTU", stepError(mtuCtx, err))
	}

	if err := ctx.Err(); err != nil {
		return fail("connect", err)
	}

	s := &Session{
		ID:          uuid.New(),
		Peripheral:  p,
		MTU:         mtu,
		Profile:     profile,
		ConnectedAt: time.Now(),
		link:        link,
		done:        make(chan struct{}),
	}

	m.connMutex.Lock()
	if m.session != nil {
		m.connMutex.Unlock()
		return fail("connect", fault.SessionAlreadyActive("another session was established concurrently"))
	}
	s.gen = m.store.Begin()
	m.session = s
	m.connMutex.Unlock()

	log.WithFields(logrus.Fields{
		"session_id": s.ID.String(),
		"mtu":        mtu,
		"services":   len(profile),
	}).Info("BLE device connected")
	logTopology(m.logger, p.ID, profile)

	return s, nil
}

// stepError reports a step deadline as device.ErrTimeout
func stepError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, device.ErrTimeout) {
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}
	return device.NormalizeError(err)
}

// watch invokes onLost once if the link of s goes down before the session is released.
func (m *connectionManager) watch(s *Session, onLost func(*Session)) {
	groutine.Go(context.Background(), "link-monitor-"+s.Peripheral.ID, func(ctx context.Context) {
		select {
		case <-s.done:
		case <-s.link.Disconnected():
			select {
			case <-s.done:
				return
			default:
			}
			m.logger.WithFields(logrus.Fields{
				"address":    s.Peripheral.ID,
				"session_id": s.ID.String(),
			}).Warn("Peripheral disconnected")
			onLost(s)
		}
	})
}

func (m *connectionManager) current() *Session {
	m.connMutex.RLock()
	defer m.connMutex.RUnlock()
	return m.session
}

// release tears s down. The store is cleared together with dropping the
// session, so no reader sees readings of a session that is gone; subscriptions
// and the link are stopped afterwards.
// Returns false if s is not the live session (already released).
func (m *connectionManager) release(s *Session, reason string) (bool, error) {
	m.connMutex.Lock()
	if s == nil || m.session != s {
		m.connMutex.Unlock()
		return false, nil
	}
	m.store.Clear()
	m.session = nil
	close(s.done)
	m.connMutex.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"address":    s.Peripheral.ID,
		"session_id": s.ID.String(),
		"reason":     reason,
	})
	log.Info("Disconnecting BLE device...")

	m.subs.stopAll(s.link)

	err := s.link.Close()

	if err != nil {
		log.WithError(err).Warn("BLE device disconnected with errors")
	} else {
		log.Info("BLE device disconnected successfully")
	}
	return true, err
}

// logTopology writes the discovered service tree to the log
func logTopology(logger *logrus.Logger, address string, profile []device.ServiceInfo) {
	for _, svc := range profile {
		logger.WithFields(logrus.Fields{
			"address":         address,
			"service_uuid":    svc.UUID,
			"service":         svc.Name,
			"characteristics": len(svc.Characteristics),
		}).Info("Discovered service")

		for _, ch := range svc.Characteristics {
			logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID,
				"char_uuid":    ch.UUID,
				"name":         ch.Name,
				"notify":       ch.Notify,
				"indicate":     ch.Indicate,
				"read":         ch.Read,
			}).Debug("Discovered characteristic")
		}
	}
}
