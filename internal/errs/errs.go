// Package errs defines the error kinds shared by the engine, the gateway
// and the backend.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindNotFound means an event, guest or table does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindValidation means the input was rejected; only that item is aborted.
	KindValidation Kind = "VALIDATION"
	// KindTransientSync means talking to the backend or provider failed and
	// a later attempt may succeed.
	KindTransientSync Kind = "TRANSIENT_SYNC"
)

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps err as a KindTransientSync error.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransientSync, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsTransient(err error) bool  { return KindOf(err) == KindTransientSync }
