package mocks

import (
	"context"
	"sync"

	"github.com/srg/gasmon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockLink is a mock implementation of device.Link.
//
// Besides recording calls it keeps the handlers registered through Subscribe,
// so tests can push notifications with Notify and simulate a peripheral-side
// drop with Drop. UUIDs are normalized before they reach the mock, so
// expectations can be written in short form.
type MockLink struct {
	mock.Mock

	mu           sync.Mutex
	handlers     map[string]device.NotificationHandler
	disconnected chan struct{}
	dropOnce     sync.Once
}

var _ device.Link = (*MockLink)(nil)

// NewMockLink creates a MockLink whose Disconnected channel is open.
func NewMockLink() *MockLink {
	return &MockLink{
		handlers:     make(map[string]device.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func handlerKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

func (m *MockLink) Address() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLink) DiscoverProfile(ctx context.Context) ([]device.ServiceInfo, error) {
	args := m.Called(ctx)
	profile, _ := args.Get(0).([]device.ServiceInfo)
	return profile, args.Error(1)
}

func (m *MockLink) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	args := m.Called(ctx, mtu)
	return args.Int(0), args.Error(1)
}

func (m *MockLink) Subscribe(service, characteristic string, handler device.NotificationHandler) error {
	args := m.Called(device.NormalizeUUID(service), device.NormalizeUUID(characteristic))
	if err := args.Error(0); err != nil {
		return err
	}

	m.mu.Lock()
	m.handlers[handlerKey(service, characteristic)] = handler
	m.mu.Unlock()
	return nil
}

func (m *MockLink) Unsubscribe(service, characteristic string) error {
	args := m.Called(device.NormalizeUUID(service), device.NormalizeUUID(characteristic))

	m.mu.Lock()
	delete(m.handlers, handlerKey(service, characteristic))
	m.mu.Unlock()
	return args.Error(0)
}

func (m *MockLink) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Close records the call and closes the Disconnected channel, like a real stack does.
func (m *MockLink) Close() error {
	args := m.Called()
	m.Drop()
	return args.Error(0)
}

// Drop simulates the peripheral going away.
func (m *MockLink) Drop() {
	m.dropOnce.Do(func() { close(m.disconnected) })
}

// Notify delivers data to the handler subscribed for the characteristic.
// Returns false when nothing is subscribed.
func (m *MockLink) Notify(service, characteristic string, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[handlerKey(service, characteristic)]
	m.mu.Unlock()

	if !ok {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a handler is registered for the characteristic.
func (m *MockLink) Subscribed(service, characteristic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[handlerKey(service, characteristic)]
	return ok
}

// SubscriptionCount returns the number of registered handlers.
func (m *MockLink) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// Handler returns the handler registered for the characteristic, so tests can
// replay a callback after it was unsubscribed.
func (m *MockLink) Handler(service, characteristic string) device.NotificationHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[handlerKey(service, characteristic)]
}
