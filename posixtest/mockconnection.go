// Package posixtest provides testing utilities for mocking remote hosts.
package posixtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/o0-o/posix/protocol"
)

var _ protocol.Connection = (*MockConnection)(nil)

// A is the struct passed to the command handling functions.
type A struct {
	// Ctx is the context passed to the command
	Ctx context.Context //nolint:containedctx
	// Stdin is the standard input of the command
	Stdin io.Reader
	// Stdout is the standard output of the command
	Stdout io.Writer
	// Stderr is the standard error of the command
	Stderr io.Writer
	// Command is the command line
	Command string
}

// CommandHandler is a function that handles a mocked command.
type CommandHandler func(a *A) error

// CommandMatcher is a function that checks if a command matches a certain criteria.
type CommandMatcher func(string) bool

// HasPrefix returns a CommandMatcher that checks if a command starts with a given prefix.
func HasPrefix(prefix string) CommandMatcher {
	return func(cmd string) bool {
		return strings.HasPrefix(cmd, prefix)
	}
}

// HasSuffix returns a CommandMatcher that checks if a command ends with a given suffix.
func HasSuffix(suffix string) CommandMatcher {
	return func(cmd string) bool {
		return strings.HasSuffix(cmd, suffix)
	}
}

// Contains returns a CommandMatcher that checks if a command contains a given substring.
func Contains(substring string) CommandMatcher {
	return func(cmd string) bool {
		return strings.Contains(cmd, substring)
	}
}

// Equal returns a CommandMatcher that checks if a command equals a given string.
func Equal(str string) CommandMatcher {
	return func(cmd string) bool {
		return cmd == str
	}
}

// Match returns a CommandMatcher that checks if a command matches a given regular expression.
func Match(pattern string) CommandMatcher {
	regex := regexp.MustCompile(pattern)
	return func(cmd string) bool {
		return regex.MatchString(cmd)
	}
}

// ExitError is an error carrying a process exit code, like the ones
// returned by real transports.
type ExitError int

// Error implements the error interface.
func (e ExitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// ExitCode returns the exit code.
func (e ExitError) ExitCode() int {
	return int(e)
}

type matcher struct {
	fn      CommandMatcher
	handler CommandHandler
}

// MockConnection is a mock connection. Commands are answered by the first
// registered handler whose matcher accepts the command line. Unmatched
// commands exit with DefaultExit.
type MockConnection struct {
	// ErrConnection makes every StartProcess call fail like a broken transport
	ErrConnection error
	// DefaultExit is the exit code of commands without a matching handler
	DefaultExit int

	commands []string
	matchers []matcher
	mu       sync.Mutex
}

// NewMockConnection creates a new mock connection.
func NewMockConnection() *MockConnection {
	return &MockConnection{}
}

// String returns the string representation of the connection.
func (m *MockConnection) String() string { return "mockhost" }

// Protocol returns the protocol of the connection.
func (m *MockConnection) Protocol() string { return "mock" }

// IPAddress returns the IP address of the connection.
func (m *MockConnection) IPAddress() string { return "mock" }

// AddCommand adds a mocked command handler which is called when the matcher matches the command line.
// Handlers registered later take precedence.
func (m *MockConnection) AddCommand(matchFn CommandMatcher, handler CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchers = append([]matcher{{fn: matchFn, handler: handler}}, m.matchers...)
}

// AddCommandOutput adds a mocked command that writes output to stdout and exits with 0.
func (m *MockConnection) AddCommandOutput(matchFn CommandMatcher, output string) {
	m.AddCommand(matchFn, func(a *A) error {
		_, err := io.WriteString(a.Stdout, output)
		return err //nolint:wrapcheck
	})
}

// AddCommandFailure adds a mocked command that writes stderr and exits with the given code.
func (m *MockConnection) AddCommandFailure(matchFn CommandMatcher, code int, stderr string) {
	m.AddCommand(matchFn, func(a *A) error {
		_, _ = io.WriteString(a.Stderr, stderr)
		return ExitError(code)
	})
}

type mockWaiter struct {
	a       *A
	handler CommandHandler
}

func (w *mockWaiter) Wait() error {
	if w.a.Stdin != nil {
		defer func() { _, _ = io.Copy(io.Discard, w.a.Stdin) }()
	}
	return w.handler(w.a)
}

// StartProcess simulates a start of a process.
func (m *MockConnection) StartProcess(ctx context.Context, cmd string, stdin io.Reader, stdout io.Writer, stderr io.Writer) (protocol.Waiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrConnection != nil {
		return nil, protocol.ErrConnectionFailed.Wrap(m.ErrConnection)
	}
	m.commands = append(m.commands, cmd)

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	a := &A{Ctx: ctx, Stdin: stdin, Stdout: stdout, Stderr: stderr, Command: cmd}

	for _, mt := range m.matchers {
		if mt.fn(cmd) {
			return &mockWaiter{a: a, handler: mt.handler}, nil
		}
	}

	code := m.DefaultExit
	return &mockWaiter{a: a, handler: func(*A) error {
		if code == 0 {
			return nil
		}
		return ExitError(code)
	}}, nil
}

// Reset clears the command history.
func (m *MockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}

// Received returns nil if a command accepted by matchFn was received.
func (m *MockConnection) Received(matchFn CommandMatcher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cmd := range m.commands {
		if matchFn(cmd) {
			return nil
		}
	}
	return errors.New("a matching command was not received") //nolint:goerr113
}

// NotReceived returns nil if no command accepted by matchFn was received.
func (m *MockConnection) NotReceived(matchFn CommandMatcher) error {
	if m.Received(matchFn) == nil {
		return errors.New("a matching command was received") //nolint:goerr113
	}
	return nil
}

// Len returns the number of commands received.
func (m *MockConnection) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

// Commands returns a copy of the commands received.
func (m *MockConnection) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := make([]string, len(m.commands))
	copy(dup, m.commands)
	return dup
}

// LastCommand returns the last command received.
func (m *MockConnection) LastCommand() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return ""
	}
	return m.commands[len(m.commands)-1]
}
