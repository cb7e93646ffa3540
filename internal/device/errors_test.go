package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "bluetooth off", err: errors.New("Bluetooth is turned off"), expected: ErrBluetoothOff},
		{name: "adapter powered off", err: errors.New("org.bluez.Error.Failed: adapter is powered off"), expected: ErrBluetoothOff},
		{name: "not connected", err: errors.New("device not connected"), expected: ErrNotConnected},
		{name: "disconnected", err: errors.New("peripheral disconnected"), expected: ErrNotConnected},
		{name: "already connected", err: errors.New("device already connected"), expected: ErrAlreadyConnected},
		{name: "not initialized", err: errors.New("connection is not initialized"), expected: ErrNotInitialized},
		{name: "timeout", err: errors.New("operation timed out"), expected: ErrTimeout},
		{name: "context canceled passes through", err: context.Canceled, expected: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)

			assert.ErrorIs(t, got, tt.expected)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	assert.NoError(t, NormalizeError(nil))
}

func TestNormalizeError_KeepsExistingConnectionError(t *testing.T) {
	err := fmt.Errorf("dial: %w", ErrAlreadyConnected)

	assert.Same(t, err, NormalizeError(err))
}

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{State: NotConnected, Msg: "link lost"}

	assert.Equal(t, "not_connected: link lost", err.Error())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(fmt.Errorf("wrap: %w", err), NotConnected))
	assert.False(t, IsConnectionState(errors.New("x"), NotConnected))

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
	assert.Equal(t, `service "181a" not found`, (&NotFoundError{Resource: "service", UUIDs: []string{"181a"}}).Error())
	assert.Equal(t, `characteristic "2bd1" not found in service "181a"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"181a", "2bd1"}}).Error())
}

func TestFindCharacteristic(t *testing.T) {
	profile := []ServiceInfo{
		{
			UUID: "181a",
			Characteristics: []CharacteristicInfo{
				{UUID: "2bd1", Notify: true},
				{UUID: "2a6e", Read: true},
			},
		},
		{
			UUID: "de664a177db4449f97ba5514e19a9d94",
			Characteristics: []CharacteristicInfo{
				{UUID: "4c28fcb8d69b404a866841655d814e7f", Indicate: true},
			},
		},
	}

	t.Run("finds by long form", func(t *testing.T) {
		ch, err := FindCharacteristic(profile, "0000181a-0000-1000-8000-00805f9b34fb", "00002bd1-0000-1000-8000-00805f9b34fb")
		assert.NoError(t, err)
		assert.True(t, ch.CanNotify())
	})

	t.Run("indicate counts as notify", func(t *testing.T) {
		ch, err := FindCharacteristic(profile, "de664a17-7db4-449f-97ba-5514e19a9d94", "4c28fcb8-d69b-404a-8668-41655d814e7f")
		assert.NoError(t, err)
		assert.True(t, ch.CanNotify())
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := FindCharacteristic(profile, "180f", "2a19")
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)
		assert.Equal(t, "service", nf.Resource)
	})

	t.Run("missing characteristic", func(t *testing.T) {
		_, err := FindCharacteristic(profile, "181a", "2bd2")
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)
		assert.Equal(t, "characteristic", nf.Resource)
	})

	assert.Equal(t, 3, CountCharacteristics(profile))
}

func TestScanMode(t *testing.T) {
	for _, m := range []ScanMode{ScanModeLowPower, ScanModeBalanced, ScanModeLowLatency} {
		parsed, ok := ParseScanMode(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, parsed)
	}

	_, ok := ParseScanMode("turbo")
	assert.False(t, ok)
}

func TestManufacturerName(t *testing.T) {
	assert.Equal(t, "Nordic Semiconductor ASA", ManufacturerName([]byte{0x59, 0x00, 0x01}))
	assert.Equal(t, "0xFFFE", ManufacturerName([]byte{0xFE, 0xFF}))
	assert.Equal(t, "", ManufacturerName([]byte{0x01}))

	_, err := CompanyID(nil)
	assert.Error(t, err)
}
