package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/fault"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the peripheral dropped the link while monitoring.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a link that was never connected or was already closed.
	ErrConnectionLost = errors.New("connection lost")

	ErrPeripheralNotFound = errors.New("peripheral not found")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
// Adapter states win over the taxonomy kind since they tell the user what to fix.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, device.ErrNotInitialized):
		return "Bluetooth adapter could not be initialized (is a controller present and are you allowed to use it?)"
	case errors.Is(err, device.ErrUnsupported) && fault.KindOf(err) == "":
		return fmt.Sprintf("not supported by this Bluetooth backend: %v", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		if errors.Is(err, fault.ErrConnectionFailed) {
			return fmt.Sprintf("connection timed out while trying to %s", reasonOf(err))
		}
		return "operation timed out"
	}

	switch fault.KindOf(err) {
	case fault.KindScanFailed:
		return fmt.Sprintf("scan failed: %v", errors.Unwrap(err))
	case fault.KindSessionAlreadyActive:
		return "a sensor session is already active; disconnect first"
	case fault.KindConnectionFailed:
		if cause := errors.Unwrap(firstFault(err)); cause != nil {
			return fmt.Sprintf("could not %s: %v", reasonOf(err), cause)
		}
		return fmt.Sprintf("could not %s", reasonOf(err))
	case fault.KindNoActiveSession:
		return "no sensor connected"
	case fault.KindNotificationError:
		return fmt.Sprintf("channel %s could not be monitored: %v", fault.LabelOf(err), errors.Unwrap(firstFault(err)))
	case fault.KindMalformedPayload:
		return fmt.Sprintf("malformed payload: %v", errors.Unwrap(firstFault(err)))
	}

	return err.Error()
}

func firstFault(err error) *fault.Error {
	var ferr *fault.Error
	if errors.As(err, &ferr) {
		return ferr
	}
	return nil
}

func reasonOf(err error) string {
	if f := firstFault(err); f != nil && f.Reason != "" {
		return f.Reason
	}
	return "connect"
}
