package backing

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IBacking is the generic interface for a semaphore backing store. A backing
// tracks, per key, how many permits each holder currently has reserved and
// when those reservations lapse.
//
// All operations are short and synchronous. Contention is not an error:
// TryAcquire reports a lost admission check by returning false with a nil
// error. A non-nil error always means the backing itself could not function
// (environmental failure), never "the permit was taken".
type IBacking interface {
	// TryAcquire reserves the given number of permits for holder on key,
	// valid for ttl, if the other holders' valid permits plus the request
	// stay within limit. A holder that already has a reservation on the key
	// replaces it wholesale: its own prior permits are excluded from the
	// admission check, so a holder may grow or shrink its grant subject only
	// to the other holders' aggregate.
	TryAcquire(key, holder string, ttl time.Duration, limit, permits uint32) (acquired bool, err error)

	// Release gives back up to permits of the holder's reservation on key
	// and returns how many were actually released. Releasing more than is
	// held clamps to the held amount; releasing an unknown holder returns 0.
	// Expiry is deliberately not checked here: a technically-expired but
	// still-present reservation can be released for graceful cleanup.
	Release(key, holder string, permits uint32) (released uint32, err error)

	// Refresh renews the holder's existing reservation on key, writing a new
	// expiry of now+ttl and the given permit count. It fails (false) if the
	// holder has no reservation, the reservation has expired, or it covers
	// fewer permits than requested. Refresh never re-runs the cross-holder
	// admission check; it only renews what the holder legitimately holds,
	// which is why it can keep or shrink the count but never grow it.
	Refresh(key, holder string, ttl time.Duration, limit, permits uint32) (refreshed bool, err error)

	// GetCount returns the total currently valid permits outstanding on key
	// across all holders. The ttl parameter is accepted for contract
	// compatibility and ignored: each reservation's stored expiry is the
	// sole validity authority.
	GetCount(key string, ttl time.Duration) (count uint32, err error)

	// Close releases resources held by the backing. Reservations persist
	// according to the backing's storage medium.
	Close() error
}

// --------------------------------------------------------------------------
// Name Validation
// --------------------------------------------------------------------------

// ValidateName checks that a key or holder name is usable by every backing
// implementation. Names map to filesystem entries in the filesystem backing,
// so path separators and the dot directories are rejected for all backings
// to keep the contract implementation-independent.
func ValidateName(kind, name string) error {
	if name == "" {
		return NewError(RetCInvalidOperation, fmt.Sprintf("%s must not be empty", kind))
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return NewError(RetCInvalidOperation, fmt.Sprintf("invalid %s %q", kind, name))
	}
	return nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the typed error returned by backing implementations. It wraps a
// return code (of type RetCode) and a message, plus the underlying cause
// when one exists.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := ""
	switch e.Code {
	case RetCInternalError:
		code = "InternalError"
	case RetCInvalidOperation:
		code = "InvalidOperation"
	default:
		code = "Unknown"
	}
	if e.Cause != nil {
		return fmt.Sprintf("BackingError (code %s): %s: %v", code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("BackingError (code %s): %s", code, e.Msg)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new backing error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new backing error around an underlying cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Environmental failure (permissions, disk, ...).
	RetCInvalidOperation                // 2: Invalid argument (empty name, zero permits, ...).
)
