package session

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "monitoring", StateMonitoring.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestStateHasSession(t *testing.T) {
	assert.False(t, StateIdle.HasSession())
	assert.False(t, StateScanning.HasSession())
	assert.True(t, StateConnecting.HasSession())
	assert.True(t, StateConnected.HasSession())
	assert.True(t, StateMonitoring.HasSession())
	assert.True(t, StateDisconnecting.HasSession())
}

func TestMachineTransitions(t *testing.T) {
	all := []State{StateIdle, StateScanning, StateConnecting, StateConnected, StateMonitoring, StateDisconnecting}

	legal := map[[2]State]bool{
		{StateIdle, StateScanning}:            true,
		{StateIdle, StateConnecting}:          true,
		{StateScanning, StateIdle}:            true,
		{StateScanning, StateConnecting}:      true,
		{StateConnecting, StateConnected}:     true,
		{StateConnecting, StateIdle}:          true,
		{StateConnected, StateMonitoring}:     true,
		{StateConnected, StateDisconnecting}:  true,
		{StateMonitoring, StateConnected}:     true,
		{StateMonitoring, StateDisconnecting}: true,
		{StateDisconnecting, StateIdle}:       true,
	}

	for _, from := range all {
		for _, to := range all {
			m := newMachine(logrus.New())
			m.state = from

			err := m.transition(to)
			if legal[[2]State{from, to}] {
				assert.NoError(t, err, "%s -> %s MUST be allowed", from, to)
				assert.Equal(t, to, m.current())
				continue
			}

			var te *TransitionError
			require.True(t, errors.As(err, &te), "%s -> %s MUST be rejected", from, to)
			assert.Equal(t, from, te.From)
			assert.Equal(t, to, te.To)
			assert.Equal(t, from, m.current(), "a rejected transition MUST NOT change the state")
		}
	}
}

func TestMachineTransitionFrom(t *testing.T) {
	m := newMachine(logrus.New())

	prev, err := m.transitionFrom([]State{StateScanning}, StateConnecting)
	assert.Error(t, err, "idle is not in the accepted source states")
	assert.Equal(t, StateIdle, prev)
	assert.Equal(t, StateIdle, m.current())

	prev, err = m.transitionFrom([]State{StateIdle, StateScanning}, StateConnecting)
	assert.NoError(t, err)
	assert.Equal(t, StateIdle, prev)
	assert.Equal(t, StateConnecting, m.current())
}

func TestMachineObservers(t *testing.T) {
	m := newMachine(logrus.New())

	var seen [][2]State
	m.observe(func(from, to State) {
		// observers run outside the lock
		_ = m.current()
		seen = append(seen, [2]State{from, to})
	})

	require.NoError(t, m.transition(StateScanning))
	require.Error(t, m.transition(StateMonitoring))
	require.NoError(t, m.transition(StateIdle))

	assert.Equal(t, [][2]State{
		{StateIdle, StateScanning},
		{StateScanning, StateIdle},
	}, seen)
}
