package exec

import (
	"fmt"
	"strings"

	"github.com/o0-o/posix/errstring"
)

var (
	// ErrValidation is returned for malformed arguments. It is always
	// detected before anything is changed on the remote host.
	ErrValidation = errstring.New("validation failed")

	// ErrEnvironment is returned when a required tool is missing or a
	// probing command fails unexpectedly.
	ErrEnvironment = errstring.New("environment error")

	// ErrExecution is returned when a step of an operation fails on the
	// remote host.
	ErrExecution = errstring.New("execution failed")

	// ErrWriteVerification is returned when the state read back after a
	// write does not match what was requested.
	ErrWriteVerification = errstring.New("write verification failed")

	// ErrInterpreterMissing is returned when a native module can not run
	// and falling back is not possible.
	ErrInterpreterMissing = errstring.New("interpreter missing")

	// ErrRecursion is returned when an operation tries to invoke itself.
	ErrRecursion = errstring.New("recursive invocation")
)

// StepError describes a failed remote step. It names the step, the
// command and carries the command's stderr.
type StepError struct {
	Kind       *errstring.Error
	Step       string
	Command    string
	ReturnCode int
	Stderr     string
}

// NewStepError builds a StepError from a command result.
func NewStepError(kind *errstring.Error, step string, res *Result) *StepError {
	e := &StepError{Kind: kind, Step: step}
	if res != nil {
		e.Command = res.CommandLine()
		e.ReturnCode = res.ReturnCode
		e.Stderr = strings.TrimSpace(res.Stderr)
		if e.Stderr == "" {
			e.Stderr = strings.TrimSpace(res.Msg)
		}
	}
	return e
}

// Error implements the error interface.
func (e *StepError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Step)
	sb.WriteString(" failed")
	if e.Command != "" {
		fmt.Fprintf(&sb, ": `%s` (rc=%d)", e.Command, e.ReturnCode)
	}
	if e.Stderr != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Stderr)
	}
	return sb.String()
}

// Unwrap returns the error kind so errors.Is works against the sentinels.
func (e *StepError) Unwrap() error {
	if e.Kind == nil {
		return ErrExecution
	}
	return e.Kind
}
