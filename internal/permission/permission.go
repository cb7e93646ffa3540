// Package permission checks whether the process can use the Bluetooth radio
// before a scan starts. Failures are reported to the user as warnings; the
// scan is still attempted.
package permission

import (
	"context"
	"errors"
)

var (
	ErrNoController     = errors.New("no bluetooth controller found")
	ErrBlocked          = errors.New("bluetooth is blocked by rfkill")
	ErrPermissionDenied = errors.New("bluetooth permission denied")
)

// Gate reports whether Bluetooth is usable by this process.
type Gate interface {
	Check(ctx context.Context) error
}

// Func adapts a function to a Gate.
type Func func(ctx context.Context) error

func (f Func) Check(ctx context.Context) error {
	return f(ctx)
}

// Allow is a Gate that always passes.
var Allow Gate = Func(func(context.Context) error { return nil })
