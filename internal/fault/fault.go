// Package fault classifies failures of the session and cart subsystem.
//
// Only KindValidation and KindNetwork are expected to cross the library
// boundary. KindAuthExpired and KindNotFound are self-healed by the gateway,
// and KindStorage is logged and degraded to defaults.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure for recovery decisions.
type Kind string

const (
	// KindValidation is a missing identifier or bad input. Fail fast, never retried.
	KindValidation Kind = "validation"

	// KindAuthExpired is an HTTP 401. Credentials are cleared and an empty cart returned.
	KindAuthExpired Kind = "auth_expired"

	// KindNotFound is an HTTP 404 on cart fetch.
	KindNotFound Kind = "not_found"

	// KindStorage is a local persistence read/write failure.
	KindStorage Kind = "storage"

	// KindNetwork is every other transport or backend failure. Propagated for UI retry.
	KindNetwork Kind = "network"
)

// Error is a classified failure.
type Error struct {
	// Kind identifies the recovery class.
	Kind Kind

	// Op names the operation that failed, e.g. "cart.add".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a UI-level retry could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork
}

// Validation creates a KindValidation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Network wraps a transport or backend failure.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Storage wraps a persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// Wrap classifies err under kind. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Unclassified non-nil errors are reported as KindNetwork.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetwork
}

// IsValidation returns true if err is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	return is(err, KindValidation)
}

// IsNetwork returns true if err is classified as a network error.
func IsNetwork(err error) bool {
	return is(err, KindNetwork)
}

// IsStorage returns true if err is a storage fault.
func IsStorage(err error) bool {
	return is(err, KindStorage)
}

func is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
