package daqcore

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a structured daqcore error with context: the
// operation that failed, which device/queue it happened on, a
// high-level error category, and the underlying cause.
type Error struct {
	Op     string    // Operation that failed (e.g. "ReadEvent", "PushData")
	Device string    // Device/worker name ("" if not applicable)
	Queue  int       // Queue index (-1 if not applicable)
	Code   ErrorCode // High-level error category
	Msg    string    // Human-readable message
	Inner  error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("device=%s", e.Device))
	}
	if e.Queue >= 0 {
		parts = append(parts, fmt.Sprintf("queue=%d", e.Queue))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("daqcore: %s (%s)", msg, strings.Join(parts, " "))
	}
	return fmt.Sprintf("daqcore: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is compares by error code, allowing errors.Is(err, &Error{Code: ...})
// to match regardless of Op/Device/Msg.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents the high-level error categories callers can
// match on with IsCode/errors.Is instead of string comparison.
type ErrorCode string

const (
	ErrCodeDriverTransient  ErrorCode = "driver transient failure"
	ErrCodeDriverFatal      ErrorCode = "driver fatal failure"
	ErrCodeConfigViolation  ErrorCode = "configuration violation"
	ErrCodeDecodeInvalid    ErrorCode = "invalid event decode"
	ErrCodeTransportDrop    ErrorCode = "transport message dropped"
	ErrCodeConnectionLost   ErrorCode = "connection lost"
	ErrCodeShutdownRace     ErrorCode = "shutdown race"
	ErrCodeQueueOverflow    ErrorCode = "queue overflow"
	ErrCodeInvalidParameter ErrorCode = "invalid parameter"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Queue: -1}
}

// NewDeviceError creates a device-scoped error.
func NewDeviceError(op, device string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Device: device, Code: code, Msg: msg, Queue: -1}
}

// WrapError wraps an existing error with daqcore context, preserving
// the inner error's code if it is already a *Error.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if de, ok := inner.(*Error); ok {
		return &Error{Op: op, Device: de.Device, Queue: de.Queue, Code: de.Code, Msg: de.Msg, Inner: de.Inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner, Queue: -1}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
