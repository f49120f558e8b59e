// Package dErrors carries machine-readable error codes across service
// boundaries. Services create coded errors; transport maps codes to HTTP
// statuses in one place.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure. Codes are stable API; messages are not.
type Code string

const (
	// CodeInvalidInput marks malformed or contract-violating input.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict marks duplicate-with-different-payload and duplicate
	// subscription conditions.
	CodeConflict Code = "conflict"
	// CodeNotFound marks lookups for entities that do not exist.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeRateLimited marks callers that exceeded their request budget.
	CodeRateLimited Code = "rate_limited"
	// CodeUnregisteredApp marks events from apps with no capability declaration.
	CodeUnregisteredApp Code = "unregistered_app"
	// CodeUnknownIdentity marks lifecycle actors that could not be resolved.
	CodeUnknownIdentity Code = "unknown_identity"
	// CodeLowTrust marks automation actions gated off by trust score. This is
	// a policy outcome, not a caller error.
	CodeLowTrust Code = "low_trust"
	// CodeInternal marks broker faults. Callers may retry; accepted events are
	// idempotent by event_id.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Construct via New or Wrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so transport never leaks internals by accident.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
