// Package store holds the most recent decoded reading of every channel.
//
// Readers never block writers. Writes are tagged with the generation they
// were issued under: once the store is cleared (session teardown) or a new
// generation begins (new session), writes from the old generation are dropped.
package store

import (
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
)

// Reading is one decoded notification. Immutable once stored.
type Reading struct {
	Label     string    `json:"label" cbor:"label"`
	Value     float32   `json:"value" cbor:"value"`
	Formatted string    `json:"formatted" cbor:"formatted"`
	Unit      string    `json:"unit,omitempty" cbor:"unit,omitempty"`
	At        time.Time `json:"at" cbor:"at"`
	SessionID string    `json:"session_id,omitempty" cbor:"session_id,omitempty"`
}

// Age returns how old the reading is at now.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.At)
}

// Generation identifies a period during which writes are accepted
type Generation uint64

type generation struct {
	id       Generation
	open     bool
	readings *hashmap.Map[string, *Reading]
}

// Store is a concurrently readable label -> Reading map.
type Store struct {
	current atomic.Pointer[generation]
	next    atomic.Uint64
	now     func() time.Time
}

// New creates an empty store with no open generation; writes are dropped until Begin.
func New() *Store {
	s := &Store{now: time.Now}
	s.current.Store(&generation{readings: hashmap.New[string, *Reading]()})
	return s
}

// Begin discards all readings and opens a new generation for writes.
func (s *Store) Begin() Generation {
	id := Generation(s.next.Add(1))
	s.current.Store(&generation{id: id, open: true, readings: hashmap.New[string, *Reading]()})
	return id
}

// Clear removes every reading and closes the current generation.
// Writes issued under any previous generation are dropped from now on.
func (s *Store) Clear() {
	s.next.Add(1)
	s.current.Store(&generation{readings: hashmap.New[string, *Reading]()})
}

// Set stores r under r.Label if gen is still the open generation.
// Returns false when the write was dropped.
func (s *Store) Set(gen Generation, r Reading) bool {
	cur := s.current.Load()
	if !cur.open || cur.id != gen {
		return false
	}
	if r.At.IsZero() {
		r.At = s.now()
	}
	// A concurrent Clear may swap the generation after the check above; the write
	// then lands in a map no reader can reach any more.
	cur.readings.Set(r.Label, &r)
	return true
}

// Get returns the latest reading for label.
func (s *Store) Get(label string) (Reading, bool) {
	r, ok := s.current.Load().readings.Get(label)
	if !ok {
		return Reading{}, false
	}
	return *r, true
}

// GetAll returns a snapshot of every reading.
func (s *Store) GetAll() map[string]Reading {
	cur := s.current.Load()
	out := make(map[string]Reading, cur.readings.Len())
	cur.readings.Range(func(label string, r *Reading) bool {
		out[label] = *r
		return true
	})
	return out
}

// Len returns the number of labels with a reading.
func (s *Store) Len() int {
	return s.current.Load().readings.Len()
}

// Stale returns the labels whose reading is older than maxAge.
func (s *Store) Stale(maxAge time.Duration) []string {
	now := s.now()
	var stale []string
	s.current.Load().readings.Range(func(label string, r *Reading) bool {
		if r.Age(now) > maxAge {
			stale = append(stale, label)
		}
		return true
	})
	return stale
}

// Active reports whether a generation is open for writes.
func (s *Store) Active() bool {
	return s.current.Load().open
}
