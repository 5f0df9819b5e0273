// Package protocol contains the interfaces for the transport implementations.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/o0-o/posix/errstring"
)

var (
	// ErrValidationFailed is returned when a connection config fails validation.
	ErrValidationFailed = errstring.New("validation failed")

	// ErrAbort is returned when retrying an operation will not result in a
	// different outcome.
	ErrAbort = errstring.New("operation can not be completed")

	// ErrConnectionFailed wraps any failure of the transport itself, as opposed
	// to a failure of the command that was run through it.
	ErrConnectionFailed = errstring.New("connection failure")
)

// Waiter is a process that can be waited to finish.
type Waiter interface {
	Wait() error
}

// ProcessStarter can start processes.
type ProcessStarter interface {
	StartProcess(ctx context.Context, cmd string, stdin io.Reader, stdout io.Writer, stderr io.Writer) (Waiter, error)
}

// Connector is a connection that can be established.
type Connector interface {
	Connect() error
}

// Disconnector is a connection that can be closed.
type Disconnector interface {
	Disconnect()
}

// Connection is the minimum interface for transport implementations.
type Connection interface {
	fmt.Stringer
	Protocol() string
	IPAddress() string
	ProcessStarter
}

// ConnectionConfigurer can produce a connection.
type ConnectionConfigurer interface {
	fmt.Stringer
	Connection() (Connection, error)
}

type exitCoder interface {
	ExitCode() int
}

type exitStatuser interface {
	ExitStatus() int
}

// ExitCode extracts the exit code of a finished process from the error
// returned by Waiter.Wait. A nil error is exit code 0. The second return
// value is false when the error does not carry an exit code, which means the
// process could not be run to completion by the transport.
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	var es exitStatuser
	if errors.As(err, &es) {
		return es.ExitStatus(), true
	}
	return -1, false
}
