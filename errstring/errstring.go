// Package errstring defines a sentinel error type that can wrap a cause
// while still matching itself with errors.Is.
package errstring

import (
	"fmt"
)

// Error is a sentinel error.
type Error struct {
	msg string
}

// New creates a new sentinel error.
func New(msg string) *Error {
	return &Error{msg}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.msg
}

// Wrap returns an error that matches both e and cause.
func (e *Error) Wrap(cause error) error {
	if cause == nil {
		return e
	}
	return &wrappedError{sentinel: e, cause: cause}
}

// Wrapf is a shortcut for Wrap(fmt.Errorf(format, args...)).
func (e *Error) Wrapf(format string, args ...any) error {
	return &wrappedError{sentinel: e, cause: fmt.Errorf(format, args...)} //nolint:goerr113
}

type wrappedError struct {
	sentinel *Error
	cause    error
}

func (e *wrappedError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *wrappedError) Is(target error) bool {
	return target == error(e.sentinel) //nolint:errorlint
}

func (e *wrappedError) Unwrap() error {
	return e.cause
}
