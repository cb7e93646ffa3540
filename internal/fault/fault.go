// Package fault defines the error taxonomy shared by the scanner, the session
// layer and every consumer of the session facade.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure in the taxonomy
type Kind string

const (
	KindScanFailed           Kind = "scan_failed"
	KindSessionAlreadyActive Kind = "session_already_active"
	KindConnectionFailed     Kind = "connection_failed"
	KindNoActiveSession      Kind = "no_active_session"
	KindNotificationError    Kind = "notification_error"
	KindMalformedPayload     Kind = "malformed_payload"
)

// Error is the single error type handed to callers of the session facade.
// Label is set for per-channel failures, Reason for connection failures.
type Error struct {
	Kind   Kind
	Label  string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := string(e.Kind)
	if e.Label != "" {
		msg = fmt.Sprintf("%s(%s)", msg, e.Label)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Sentinels for errors.Is comparisons
var (
	ErrScanFailed           = &Error{Kind: KindScanFailed}
	ErrSessionAlreadyActive = &Error{Kind: KindSessionAlreadyActive}
	ErrConnectionFailed     = &Error{Kind: KindConnectionFailed}
	ErrNoActiveSession      = &Error{Kind: KindNoActiveSession}
	ErrNotificationError    = &Error{Kind: KindNotificationError}
	ErrMalformedPayload     = &Error{Kind: KindMalformedPayload}
)

// ScanFailed wraps an adapter scan error.
func ScanFailed(err error) error {
	return &Error{Kind: KindScanFailed, Err: err}
}

// SessionAlreadyActive reports that a session (or a connect attempt) already owns the adapter.
func SessionAlreadyActive(reason string) error {
	return &Error{Kind: KindSessionAlreadyActive, Reason: reason}
}

// ConnectionFailed reports a failed connect step. reason names the step.
func ConnectionFailed(reason string, err error) error {
	return &Error{Kind: KindConnectionFailed, Reason: reason, Err: err}
}

// NoActiveSession reports an operation that requires a connected peripheral.
func NoActiveSession(reason string) error {
	return &Error{Kind: KindNoActiveSession, Reason: reason}
}

// NotificationError reports a failure to open or keep a notification stream for label.
func NotificationError(label string, err error) error {
	return &Error{Kind: KindNotificationError, Label: label, Err: err}
}

// MalformedPayload reports a notification payload that could not be decoded.
// label may be empty when the payload is not bound to a channel yet.
func MalformedPayload(label string, err error) error {
	return &Error{Kind: KindMalformedPayload, Label: label, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}
	return ""
}

// LabelOf returns the channel label carried by err, if any.
func LabelOf(err error) string {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Label
	}
	return ""
}

// WithLabel returns a copy of a MalformedPayload or NotificationError bound to label.
// Other errors are returned unchanged.
func WithLabel(err error, label string) error {
	var ferr *Error
	if !errors.As(err, &ferr) {
		return err
	}
	if ferr.Kind != KindMalformedPayload && ferr.Kind != KindNotificationError {
		return err
	}
	cp := *ferr
	cp.Label = label
	return &cp
}
