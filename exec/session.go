package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/sh"
)

// Operation is a stable tag identifying an entry point. It is used to
// detect an operation invoking itself.
type Operation string

// OpCommand is the tag of Session.Command.
const OpCommand Operation = "command"

type opChainKey struct{}

// Enter returns a context marked as running op. ErrRecursion is returned if
// op is already running in ctx.
func Enter(ctx context.Context, op Operation) (context.Context, error) {
	chain, _ := ctx.Value(opChainKey{}).([]Operation)
	for _, running := range chain {
		if running == op {
			return ctx, ErrRecursion.Wrapf("attempted to call '%s' from within itself", op)
		}
	}
	next := make([]Operation, len(chain), len(chain)+1)
	copy(next, chain)
	next = append(next, op)
	log.OperationEntered(ctx, string(op), len(next))
	return context.WithValue(ctx, opChainKey{}, next), nil
}

// Running returns the operations running in ctx, outermost first.
func Running(ctx context.Context) []Operation {
	chain, _ := ctx.Value(opChainKey{}).([]Operation)
	return chain
}

// SessionOption is a functional option for NewSession.
type SessionOption func(*Session)

// WithCheckMode makes the entry points report what they would do without
// changing anything.
func WithCheckMode(enabled bool) SessionOption {
	return func(s *Session) {
		s.CheckMode = enabled
	}
}

// WithDiff makes the file mutating entry points attach a diff.
func WithDiff(enabled bool) SessionOption {
	return func(s *Session) {
		s.Diff = enabled
	}
}

// WithInterpreter sets the interpreter used for native modules.
func WithInterpreter(path string) SessionOption {
	return func(s *Session) {
		s.native.Interpreter = path
	}
}

// WithForceRaw skips native execution altogether.
func WithForceRaw(enabled bool) SessionOption {
	return func(s *Session) {
		s.forceRaw = enabled
	}
}

// WithLogger sets the session logger.
func WithLogger(l log.Logger) SessionOption {
	return func(s *Session) {
		s.SetLogger(l)
	}
}

// Session is the state of one logical operation against one host. Once
// the remote interpreter has been found missing, every later command of
// the session runs raw without probing again. The temporary directory is
// created on first use and removed by Cleanup.
//
// A session is not meant to be shared between concurrent operations.
// Create one per operation.
type Session struct {
	log.LoggerInjectable

	CheckMode bool
	Diff      bool

	shell  *Shell
	native *NativeRunner
	raw    *RawRunner

	mu       sync.Mutex
	forceRaw bool
	tmpDir   string
	warnings []string
}

// NewSession returns a new session for the connection.
func NewSession(conn protocol.ProcessStarter, opts ...SessionOption) *Session {
	shell := NewShell(conn)
	s := &Session{shell: shell, native: NewNativeRunner(shell, DefaultInterpreter)}
	s.raw = NewRawRunner(shell, s.Warn)
	for _, o := range opts {
		o(s)
	}
	s.InjectLoggerTo(shell)
	s.InjectLoggerTo(s.native)
	s.InjectLoggerTo(s.raw)
	return s
}

// String returns the name of the host.
func (s *Session) String() string {
	return s.shell.String()
}

// Shell returns the low level shell of the session.
func (s *Session) Shell() *Shell {
	return s.shell
}

// Native returns the native runner of the session.
func (s *Session) Native() *NativeRunner {
	return s.native
}

// IsRaw returns true once the session has switched to raw execution.
func (s *Session) IsRaw() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceRaw
}

// ForceRaw switches the session to raw execution.
func (s *Session) ForceRaw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.forceRaw {
		s.Log().Debug("switching to raw execution", log.HostAttr(s), log.RawAttr(true))
	}
	s.forceRaw = true
}

// Runner returns the runner for the next command.
func (s *Session) Runner() Runner {
	if s.IsRaw() {
		return s.raw
	}
	return s.native
}

// Warn records a non-fatal warning for the operation.
func (s *Session) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.warnings {
		if w == msg {
			return
		}
	}
	log.Warning(s.Log(), s, msg)
	s.warnings = append(s.warnings, msg)
}

// Warnings returns the warnings recorded so far.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := make([]string, len(s.warnings))
	copy(dup, s.warnings)
	return dup
}

// FallbackIfMissing inspects a native result and switches the session to
// raw execution when it shows the interpreter is missing. It returns true
// when the caller should retry the step raw.
func (s *Session) FallbackIfMissing(op Operation, res *Result) bool {
	if !IsMissingInterpreter(res) {
		return false
	}
	s.Warn(fmt.Sprintf("native %s failed on host %s, falling back to raw execution", op, s.String()))
	log.Fallback(s.Log(), s, string(op))
	s.ForceRaw()
	return true
}

// Command runs the request natively and falls back to the raw runner when
// the remote interpreter is missing. The returned result has Raw set when
// the fallback was used.
func (s *Session) Command(ctx context.Context, req *Request) (*Result, error) {
	ctx, err := Enter(ctx, OpCommand)
	if err != nil {
		return nil, err
	}

	if !s.IsRaw() {
		res, err := s.native.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if !s.FallbackIfMissing(OpCommand, res) {
			res.Raw = false
			return res, nil
		}
	}

	return s.raw.Run(ctx, req)
}

// Run runs the arguments without a shell and with check mode disabled. It
// is meant for the probing and mutating steps of the higher level
// operations, which handle check mode themselves.
func (s *Session) Run(ctx context.Context, args ...string) (*Result, error) {
	return s.Command(ctx, Argv(args...))
}

// RunStdin is like Run but feeds stdin to the command as is.
func (s *Session) RunStdin(ctx context.Context, stdin string, args ...string) (*Result, error) {
	req := Argv(args...).WithStdin(stdin)
	noNewline := false
	req.StdinAddNewline = &noNewline
	return s.Command(ctx, req)
}

// RunShell runs cmd through the shell with check mode disabled.
func (s *Session) RunShell(ctx context.Context, cmd string) (*Result, error) {
	return s.Command(ctx, ShellCmd(cmd))
}

// Check runs the arguments and returns true if they exited with zero.
func (s *Session) Check(ctx context.Context, args ...string) (bool, error) {
	res, err := s.Run(ctx, args...)
	if err != nil {
		return false, err
	}
	return res.ReturnCode == 0, nil
}

// TmpDir returns the private temporary directory of the session, creating
// it on first use.
func (s *Session) TmpDir(ctx context.Context) (string, error) {
	s.mu.Lock()
	dir := s.tmpDir
	s.mu.Unlock()
	if dir != "" {
		return dir, nil
	}

	res, err := s.Run(ctx, "mktemp", "-d", "/tmp/posix.XXXXXX")
	if err != nil {
		return "", err
	}
	lines := res.Lines()
	if res.ReturnCode != 0 || len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", NewStepError(ErrEnvironment, "create temporary directory", res)
	}
	dir = strings.TrimSpace(lines[0])
	log.Trace(ctx, "created temporary directory", log.KeyHost, s.String(), log.KeyFile, dir)

	s.mu.Lock()
	s.tmpDir = dir
	s.mu.Unlock()
	return dir, nil
}

// TmpFile returns the path of the staging file inside the temporary
// directory.
func (s *Session) TmpFile(ctx context.Context) (string, error) {
	dir, err := s.TmpDir(ctx)
	if err != nil {
		return "", err
	}
	return dir + "/posix_tmpfile", nil
}

// Cleanup removes the temporary directory if one was created. It uses the
// low level shell directly so it works regardless of the session state
// and a cancelled ctx.
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	dir := s.tmpDir
	s.tmpDir = ""
	s.mu.Unlock()
	if dir == "" {
		return
	}
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	res, err := s.shell.Run(ctx, sh.Command("rm", "-rf", dir))
	if err != nil {
		s.Log().Warn("failed to remove temporary directory", log.ErrorAttr(err), log.KeyFile, dir)
		return
	}
	if res.ReturnCode != 0 {
		s.Log().Warn("failed to remove temporary directory", log.KeyFile, dir, log.KeyExitCode, res.ReturnCode)
	}
}
