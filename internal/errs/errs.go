// Package errs defines the error categories reported by an interpolation run.
package errs

import (
	"errors"
	"fmt"
)

// Error categories. Every failure surfaced by a run matches exactly one of
// these with errors.Is.
var (
	// ErrInsufficientInput is returned when fewer than 3 distinct station
	// positions are available.
	ErrInsufficientInput = errors.New("insufficient input")

	// ErrDegenerateGeometry is returned when a zero-area triangle is met.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrMissingJoinData marks a sample excluded because a triangle vertex has
	// no station observation inside the look-back window. It is never fatal.
	ErrMissingJoinData = errors.New("missing join data")

	// ErrInvalidParameter is returned for rejected configuration values.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrStorage wraps failures reported by the persistent store.
	ErrStorage = errors.New("storage error")
)

// Error is a categorized failure with the context that triggered it.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error

	// Op names the operation, e.g. "triangulate" or "replace results".
	Op string

	// Context identifies what failed: a table name, a triangle id, a sample
	// id range or a parameter value.
	Context string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the category and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New creates a categorized error.
func New(kind error, op, context string, err error) *Error {
	return &Error{Kind: kind, Op: op, Context: context, Err: err}
}

// Invalid reports a rejected parameter value.
func Invalid(op, param string, value any) *Error {
	return &Error{
		Kind:    ErrInvalidParameter,
		Op:      op,
		Context: fmt.Sprintf("%s=%v", param, value),
	}
}

// Storage wraps a store failure with the table it concerns.
func Storage(op, table string, err error) *Error {
	return &Error{Kind: ErrStorage, Op: op, Context: "table " + table, Err: err}
}

// KindOf returns the category of err, or nil when err is not categorized.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInsufficientInput,
		ErrDegenerateGeometry,
		ErrMissingJoinData,
		ErrInvalidParameter,
		ErrStorage,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
