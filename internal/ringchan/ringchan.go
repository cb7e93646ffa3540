// Package ringchan provides a bounded channel that overwrites its oldest
// element instead of blocking the producer.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers (BLE callbacks) must never block; when the buffer is full the
// oldest element is discarded and counted.
//
//	rc := ringchan.New[Event](100)
//	rc.ForceSend(ev)          // producer
//	for ev := range rc.C() {} // consumer
type RingChannel[T any] struct {
	ch          chan T
	written     atomic.Int64
	overwritten atomic.Int64
	closed      atomic.Bool
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend inserts v, discarding the oldest element if the buffer is full.
// Returns true when an element was dropped. Sends after Close are ignored.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	if rc.closed.Load() {
		return false
	}

	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Safe to call more than once.
// The caller must ensure no ForceSend runs concurrently with Close.
func (rc *RingChannel[T]) Close() {
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}

// Written returns the number of elements accepted so far.
func (rc *RingChannel[T]) Written() int64 {
	return rc.written.Load()
}

// Overwritten returns the number of elements discarded to make room.
func (rc *RingChannel[T]) Overwritten() int64 {
	return rc.overwritten.Load()
}
