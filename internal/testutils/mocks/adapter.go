// Package mocks holds testify mocks for the device abstraction.
package mocks

import (
	"context"

	"github.com/srg/gasmon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of device.Adapter
type MockAdapter struct {
	mock.Mock
}

var _ device.Adapter = (*MockAdapter)(nil)

func (m *MockAdapter) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	args := m.Called(ctx, params, handler)
	return args.Error(0)
}

func (m *MockAdapter) Connect(ctx context.Context, address string) (device.Link, error) {
	args := m.Called(ctx, address)
	link, _ := args.Get(0).(device.Link)
	return link, args.Error(1)
}
