package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/decoder"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
	"github.com/srg/gasmon/internal/groutine"
	"github.com/srg/gasmon/internal/store"
)

// SubscriptionStats are the counters of one channel subscription
type SubscriptionStats struct {
	Received  uint64 `json:"received"`
	Applied   uint64 `json:"applied"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
}

// MonitorResult reports which channels are being monitored after Monitor.
type MonitorResult struct {
	Started []string
	Failed  map[string]error
}

// Err joins the per-channel failures, or returns nil when every channel started.
func (r *MonitorResult) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	labels := make([]string, 0, len(r.Failed))
	for l := range r.Failed {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	errs := make([]error, 0, len(labels))
	for _, l := range labels {
		errs = append(errs, r.Failed[l])
	}
	return errors.Join(errs...)
}

type notification struct {
	data []byte
	at   time.Time
}

// subscription streams one channel into the store.
// Notifications are queued in arrival order and applied by a single worker.
type subscription struct {
	channel channels.Channel
	session *Session

	queue mpmc.RichOverlappedRingBuffer[notification]
	bell  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	received  atomic.Uint64
	applied   atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
}

func (s *subscription) stats() SubscriptionStats {
	return SubscriptionStats{
		Received:  s.received.Load(),
		Applied:   s.applied.Load(),
		Malformed: s.malformed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// handle is the stack-side notification callback. It must not block.
func (s *subscription) handle(data []byte) {
	s.received.Add(1)
	if s.ctx.Err() != nil {
		s.dropped.Add(1)
		return
	}

	n := notification{data: append([]byte(nil), data...), at: time.Now()}
	overwrites, err := s.queue.EnqueueM(n)
	if err != nil {
		s.dropped.Add(1)
		return
	}
	if overwrites > 0 {
		s.dropped.Add(uint64(overwrites))
	}

	select {
	case s.bell <- struct{}{}:
	default:
	}
}

// subscriptionEngine runs one subscription per channel label.
type subscriptionEngine struct {
	store     *store.Store
	logger    *logrus.Logger
	queueSize uint32

	mu   sync.Mutex
	subs map[string]*subscription

	// retired keeps the counters of stopped subscriptions until the next session
	retired map[string]SubscriptionStats
}

func newSubscriptionEngine(st *store.Store, logger *logrus.Logger, queueSize uint32) *subscriptionEngine {
	if queueSize == 0 {
		queueSize = 64
	}
	return &subscriptionEngine{
		store:     st,
		logger:    logger,
		queueSize: queueSize,
		subs:      make(map[string]*subscription),
		retired:   make(map[string]SubscriptionStats),
	}
}

// start subscribes to every channel independently. A channel that cannot be
// started is reported in the result and does not affect the others.
func (e *subscriptionEngine) start(s *Session, chans []channels.Channel) *MonitorResult {
	result := &MonitorResult{Failed: make(map[string]error)}

	for _, ch := range chans {
		if err := e.startOne(s, ch); err != nil {
			e.logger.WithFields(logrus.Fields{
				"label":     ch.Label,
				"char_uuid": ch.Characteristic,
				"error":     err,
			}).Warn("Failed to start channel subscription")
			result.Failed[ch.Label] = err
			continue
		}
		result.Started = append(result.Started, ch.Label)
	}
	return result
}

func (e *subscriptionEngine) startOne(s *Session, ch channels.Channel) error {
	info, err := device.FindCharacteristic(s.Profile, ch.Service, ch.Characteristic)
	if err != nil {
		return fault.NotificationError(ch.Label, err)
	}
	if !info.CanNotify() {
		return fault.NotificationError(ch.Label, fmt.Errorf("characteristic %s does not support notifications", info.UUID))
	}

	// Re-monitoring a label, or a characteristic under another label, replaces the old subscription.
	olds := e.take(func(sub *subscription) bool {
		return sub.channel.Label == ch.Label || sub.channel.Key() == ch.Key()
	})
	for _, old := range olds {
		e.stop(old, s.link)
	}

	if err := e.launch(s, ch); err != nil {
		for _, old := range olds {
			e.restore(s, old.channel)
		}
		return err
	}
	return nil
}

// launch subscribes ch on the link and starts its worker
func (e *subscriptionEngine) launch(s *Session, ch channels.Channel) error {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		channel: ch,
		session: s,
		queue:   mpmc.NewOverlappedRingBuffer[notification](e.queueSize),
		bell:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if err := s.link.Subscribe(ch.Service, ch.Characteristic, sub.handle); err != nil {
		cancel()
		return fault.NotificationError(ch.Label, device.NormalizeError(err))
	}

	e.mu.Lock()
	e.subs[ch.Label] = sub
	e.mu.Unlock()

	groutine.Go(ctx, "subscription-"+ch.Label, func(ctx context.Context) {
		e.run(ctx, sub)
	})

	e.logger.WithFields(logrus.Fields{
		"label":      ch.Label,
		"char_uuid":  ch.Characteristic,
		"session_id": s.ID.String(),
	}).Info("Channel subscription started")
	return nil
}

// restore re-subscribes a channel whose replacement could not be started
func (e *subscriptionEngine) restore(s *Session, ch channels.Channel) {
	log := e.logger.WithFields(logrus.Fields{
		"label":      ch.Label,
		"session_id": s.ID.String(),
	})
	if err := e.launch(s, ch); err != nil {
		log.WithError(err).Warn("Previous channel subscription could not be restored")
		return
	}
	log.Info("Previous channel subscription restored")
}

// take removes and returns the subscriptions matching pred
func (e *subscriptionEngine) take(pred func(*subscription) bool) []*subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*subscription
	for label, sub := range e.subs {
		if pred(sub) {
			out = append(out, sub)
			delete(e.subs, label)
		}
	}
	return out
}

// stop cancels the worker, waits for it and unsubscribes from the link.
func (e *subscriptionEngine) stop(sub *subscription, link device.Link) {
	sub.cancel()
	<-sub.done

	if link != nil {
		if err := link.Unsubscribe(sub.channel.Service, sub.channel.Characteristic); err != nil {
			e.logger.WithFields(logrus.Fields{
				"label": sub.channel.Label,
				"error": err,
			}).Debug("Failed to unsubscribe channel")
		}
	}

	e.mu.Lock()
	e.retired[sub.channel.Label] = sub.stats()
	e.mu.Unlock()
}

// stopAll ends every subscription. No store write happens once it returns.
func (e *subscriptionEngine) stopAll(link device.Link) {
	subs := e.take(func(*subscription) bool { return true })
	for _, sub := range subs {
		sub.cancel()
	}

	e.logger.WithField("subscriptions", len(subs)).Debug("Waiting for subscription goroutines to complete...")
	for _, sub := range subs {
		e.stop(sub, link)
	}
	e.logger.Debug("All subscription goroutines completed")
}

// active returns the labels currently monitored, sorted
func (e *subscriptionEngine) active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	labels := make([]string, 0, len(e.subs))
	for l := range e.subs {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func (e *subscriptionEngine) stats() map[string]SubscriptionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]SubscriptionStats, len(e.subs)+len(e.retired))
	for l, st := range e.retired {
		out[l] = st
	}
	for l, sub := range e.subs {
		out[l] = sub.stats()
	}
	return out
}

func (e *subscriptionEngine) resetStats() {
	e.mu.Lock()
	e.retired = make(map[string]SubscriptionStats)
	e.mu.Unlock()
}

func (e *subscriptionEngine) run(ctx context.Context, sub *subscription) {
	defer close(sub.done)

	// Recover from panics in the decode path to prevent crash
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"label":     sub.channel.Label,
				"goroutine": groutine.GetName(ctx),
				"panic":     r,
			}).Error("Subscription worker panicked")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.discard(sub)
			return
		case <-sub.bell:
			e.drain(sub)
		}
	}
}

// drain applies queued notifications in arrival order
func (e *subscriptionEngine) drain(sub *subscription) {
	for !sub.queue.IsEmpty() {
		if sub.ctx.Err() != nil {
			return
		}
		n, err := sub.queue.Dequeue()
		if err != nil {
			return
		}
		e.apply(sub, n)
	}
}

// discard counts notifications still queued at cancellation
func (e *subscriptionEngine) discard(sub *subscription) {
	for !sub.queue.IsEmpty() {
		if _, err := sub.queue.Dequeue(); err != nil {
			return
		}
		sub.dropped.Add(1)
	}
}

func (e *subscriptionEngine) apply(sub *subscription, n notification) {
	label := sub.channel.Label

	value, err := decoder.DecodeRaw(n.data)
	if err != nil {
		sub.malformed.Add(1)
		e.logger.WithFields(logrus.Fields{
			"label": label,
			"bytes": len(n.data),
			"error": fault.WithLabel(err, label),
		}).Warn("Dropping malformed notification")
		return
	}

	ok := e.store.Set(sub.session.gen, store.Reading{
		Label:     label,
		Value:     value,
		Formatted: decoder.Format(value),
		Unit:      sub.channel.Unit,
		At:        n.at,
		SessionID: sub.session.ID.String(),
	})
	if !ok {
		sub.dropped.Add(1)
		return
	}
	sub.applied.Add(1)
}
