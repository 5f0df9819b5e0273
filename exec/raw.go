package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/sh"
)

// RawRunner runs command requests using nothing but the remote POSIX shell.
type RawRunner struct {
	log.LoggerInjectable
	shell *Shell
	warn  func(string)
}

var _ Runner = (*RawRunner)(nil)

// NewRawRunner returns a RawRunner on top of the shell. Warnings are passed
// to warn when it is not nil.
func NewRawRunner(shell *Shell, warn func(string)) *RawRunner {
	return &RawRunner{shell: shell, warn: warn}
}

// Kind returns KindRaw.
func (r *RawRunner) Kind() Kind {
	return KindRaw
}

func (r *RawRunner) warning(msg string) {
	r.Log().Warn(msg)
	if r.warn != nil {
		r.warn(msg)
	}
}

func skippedResult(msg, stdout string) *Result {
	return &Result{
		Msg:         msg,
		Stdout:      stdout,
		StdoutLines: []string{stdout},
		StderrLines: []string{},
		Raw:         true,
	}
}

// Run executes the request. Creates and Removes are honored and in check
// mode the command itself is never run.
func (r *RawRunner) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.SetDefaults(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	shell := req.UseShell
	if req.ExpandArgumentVars != nil && *req.ExpandArgumentVars != shell {
		return nil, ErrValidation.Wrapf("raw fallback requires expand_argument_vars and _uses_shell to be the same. " +
			"Shell-based execution expands variables remotely. If expand_argument_vars is true but _uses_shell is false, " +
			"the fallback cannot expand variables")
	}

	executable := req.Executable
	if !shell && executable != "" {
		r.warning(fmt.Sprintf("the parameter 'executable' is not supported without a shell, not using '%s'", executable))
		executable = ""
	}

	args := req.Argv
	if req.Cmd != "" && !shell {
		split, err := sh.Split(req.Cmd)
		if err != nil {
			return nil, ErrValidation.Wrap(err)
		}
		args = split
	}

	res := &Result{Raw: true}
	if shell && req.Cmd != "" {
		res.Cmd = []string{req.Cmd}
	} else {
		res.Cmd = args
	}

	var opts []ShellOption
	if executable != "" {
		opts = append(opts, Executable(executable))
	}

	if req.Chdir != "" {
		ok, err := r.shell.Check(ctx, "cd "+sh.Quote(req.Chdir), opts...)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrExecution.Wrapf("unable to change directory before execution: %s", req.Chdir)
		}
	}

	shoulda := "Did"
	if req.CheckMode {
		shoulda = "Would"
	}

	if req.Creates != "" {
		ok, err := r.shell.Check(ctx, "test -e "+sh.Quote(req.Creates))
		if err != nil {
			return nil, err
		}
		if ok {
			return skippedResult(
				fmt.Sprintf("%s not run command since '%s' exists", shoulda, req.Creates),
				fmt.Sprintf("skipped, since %s exists", req.Creates),
			), nil
		}
	}

	if req.Removes != "" {
		ok, err := r.shell.Check(ctx, "test -e "+sh.Quote(req.Removes))
		if err != nil {
			return nil, err
		}
		if !ok {
			return skippedResult(
				fmt.Sprintf("%s not run command since '%s' does not exist", shoulda, req.Removes),
				fmt.Sprintf("skipped, since %s does not exist", req.Removes),
			), nil
		}
	}

	res.Changed = true

	if req.CheckMode {
		res.Msg = "Command would have run if not in check mode"
		if req.Creates == "" && req.Removes == "" {
			res.Skipped = true
			res.Changed = false
		}
		res.finalize(false)
		return res, nil
	}

	var line string
	if shell {
		cmdStr := req.Cmd
		if cmdStr == "" {
			cmdStr = sh.Join(args...)
		}
		line = sh.Wrap(cmdStr)
	} else {
		line = sh.Join(args...)
	}

	if stdin, ok := req.stdinData(); ok {
		opts = append(opts, Stdin(stdin))
	}
	if req.Chdir != "" {
		opts = append(opts, Chdir(req.Chdir))
	}

	start := time.Now()
	out, err := r.shell.Run(ctx, line, opts...)
	if err != nil {
		return nil, err
	}
	end := time.Now()

	res.ReturnCode = out.ReturnCode
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.Start = &start
	res.End = &end
	res.finalize(boolValue(req.StripEmptyEnds, true))
	res.ModuleStdout = res.Stdout
	res.ModuleStderr = res.Stderr
	if res.ReturnCode != 0 {
		res.Msg = "non-zero return code"
	}

	return res, nil
}
