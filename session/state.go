package session

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of the Facade.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateMonitoring
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateMonitoring:
		return "monitoring"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HasSession reports whether a connection session exists, or is being built or torn down, in this state
func (s State) HasSession() bool {
	return s == StateConnecting || s == StateConnected || s == StateMonitoring || s == StateDisconnecting
}

var transitions = map[State][]State{
	StateIdle:          {StateScanning, StateConnecting},
	StateScanning:      {StateIdle, StateConnecting},
	StateConnecting:    {StateConnected, StateIdle},
	StateConnected:     {StateMonitoring, StateDisconnecting},
	StateMonitoring:    {StateConnected, StateDisconnecting},
	StateDisconnecting: {StateIdle},
}

// TransitionError is returned for a transition the state machine does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// StateObserver is notified after every state change.
type StateObserver func(from, to State)

type machine struct {
	mu        sync.Mutex
	state     State
	observers []StateObserver
	logger    *logrus.Logger
}

func newMachine(logger *logrus.Logger) *machine {
	return &machine{state: StateIdle, logger: logger}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) observe(o StateObserver) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// transition moves to `to` from whatever the current state is, if allowed.
func (m *machine) transition(to State) error {
	_, err := m.transitionFrom(nil, to)
	return err
}

// transitionFrom moves to `to` only when the current state is one of `from`
// (any state when from is empty) and the transition is legal. It returns the
// state the machine was in.
func (m *machine) transitionFrom(from []State, to State) (State, error) {
	m.mu.Lock()
	prev := m.state

	if len(from) > 0 && !contains(from, prev) {
		m.mu.Unlock()
		return prev, &TransitionError{From: prev, To: to}
	}
	if !contains(transitions[prev], to) {
		m.mu.Unlock()
		return prev, &TransitionError{From: prev, To: to}
	}

	m.state = to
	observers := append([]StateObserver(nil), m.observers...)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   to.String(),
	}).Debug("Session state changed")

	for _, o := range observers {
		o(prev, to)
	}
	return prev, nil
}

func contains(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
