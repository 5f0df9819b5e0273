package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/sh"
)

// ShellOption is a functional option for Shell.Run.
type ShellOption func(*ShellOptions)

// ShellOptions holds the options of a single low level execution.
type ShellOptions struct {
	stdin      io.Reader
	chdir      string
	executable string
}

// Stdin feeds the given string to the command's standard input.
func Stdin(data string) ShellOption {
	return func(o *ShellOptions) {
		o.stdin = strings.NewReader(data)
	}
}

// StdinReader feeds the given reader to the command's standard input.
func StdinReader(r io.Reader) ShellOption {
	return func(o *ShellOptions) {
		o.stdin = r
	}
}

// Chdir changes into dir before running the command.
func Chdir(dir string) ShellOption {
	return func(o *ShellOptions) {
		o.chdir = dir
	}
}

// Executable runs the command line through the given shell binary.
func Executable(path string) ShellOption {
	return func(o *ShellOptions) {
		o.executable = path
	}
}

// Build returns the final command line for cmd.
func (o *ShellOptions) Build(cmd string) string {
	if o.chdir != "" {
		cmd = "cd " + sh.Quote(o.chdir) + " && " + cmd
	}
	if o.executable != "" {
		cmd = sh.Join(o.executable, "-c", cmd)
	}
	return cmd
}

// NewShellOptions applies the given options.
func NewShellOptions(opts ...ShellOption) *ShellOptions {
	o := &ShellOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Shell executes command lines on a connection and collects the result.
// It is the lowest level of execution: no interpreter is needed on the
// remote host and nothing is interpreted from the output.
type Shell struct {
	log.LoggerInjectable
	conn protocol.ProcessStarter
	name string
}

// NewShell returns a Shell for the connection.
func NewShell(conn protocol.ProcessStarter) *Shell {
	name := "unknown"
	if s, ok := conn.(fmt.Stringer); ok {
		name = s.String()
	}
	return &Shell{conn: conn, name: name}
}

// String returns the name of the host the shell runs on.
func (s *Shell) String() string {
	return s.name
}

// Run executes the command line. A non-zero exit is not an error, it is
// reported in the result. The error is only set when the transport fails.
func (s *Shell) Run(ctx context.Context, cmd string, opts ...ShellOption) (*Result, error) {
	o := NewShellOptions(opts...)
	line := o.Build(cmd)

	var stdout, stderr bytes.Buffer
	start := time.Now()
	log.Trace(ctx, "executing command", log.KeyHost, s.name, log.KeyCommand, line)
	waiter, err := s.conn.StartProcess(ctx, line, o.stdin, &stdout, &stderr)
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionFailed) {
			return nil, err
		}
		return nil, protocol.ErrConnectionFailed.Wrap(err)
	}
	werr := waiter.Wait()
	end := time.Now()
	code, ok := protocol.ExitCode(werr)
	if !ok {
		s.Log().Error("command did not finish", log.ErrorAttr(werr), log.KeyCommand, line)
		if errors.Is(werr, protocol.ErrConnectionFailed) {
			return nil, werr
		}
		return nil, protocol.ErrConnectionFailed.Wrapf("%s: %w", line, werr)
	}
	log.Trace(ctx, "command finished", log.KeyHost, s.name, log.KeyExitCode, code, log.KeyDuration, end.Sub(start))

	return &Result{
		ReturnCode: code,
		Cmd:        []string{line},
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Start:      &start,
		End:        &end,
	}, nil
}

// Check runs the command line and returns true if it exited with zero.
func (s *Shell) Check(ctx context.Context, cmd string, opts ...ShellOption) (bool, error) {
	res, err := s.Run(ctx, cmd, opts...)
	if err != nil {
		return false, err
	}
	return res.ReturnCode == 0, nil
}
