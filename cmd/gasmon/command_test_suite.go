//go:build test

package main

import (
	"bytes"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/testutils"
)

// CommandTestSuite runs gasmon commands against the mocked gas sensor.
// All cmd/gasmon suites embed it instead of MockPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockPeripheralSuite

	originalAdapterFactory func(string, *channels.Registry, *logrus.Logger) (device.Adapter, error)
}

// SetupTest builds the peripheral and routes adapterFactory to it
func (s *CommandTestSuite) SetupTest() {
	s.MockPeripheralSuite.SetupTest()

	s.originalAdapterFactory = adapterFactory
	adapter := s.Peripheral.Adapter
	adapterFactory = func(string, *channels.Registry, *logrus.Logger) (device.Adapter, error) {
		return adapter, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	adapterFactory = s.originalAdapterFactory
	s.MockPeripheralSuite.TearDownTest()
}

// syncBuffer is a bytes.Buffer safe to read while a command is still writing
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ExecuteCommand runs a fresh command tree with args; stdout and stderr are
// readable while the command runs. The returned channel yields its error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr *syncBuffer, done <-chan error) {
	root := newRootCmd()
	stdout, stderr = &syncBuffer{}, &syncBuffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	ch := make(chan error, 1)
	go func() { ch <- root.Execute() }()
	return stdout, stderr, ch
}

// Wait returns the command error, failing the test if it does not finish in time.
func (s *CommandTestSuite) Wait(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(s.TestTimeout):
		s.FailNow("command MUST finish within the test timeout")
		return nil
	}
}

// UsePeripheral swaps the peripheral the commands talk to within one test
func (s *CommandTestSuite) UsePeripheral(p *testutils.MockPeripheral) {
	s.Peripheral = p
	adapterFactory = func(string, *channels.Registry, *logrus.Logger) (device.Adapter, error) {
		return p.Adapter, nil
	}
}
