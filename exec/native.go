package exec

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/sh"
)

// DefaultInterpreter is the interpreter used for native modules when none
// is configured.
const DefaultInterpreter = "python3"

// exit code of a shell when the command could not be found
const exitNotFound = 127

//go:embed native.py
var nativeHelper string

// NativeRunner runs modules through an interpreter on the remote host. The
// module request is passed as JSON on stdin and the module replies with a
// JSON result on stdout.
type NativeRunner struct {
	log.LoggerInjectable
	shell *Shell
	// Interpreter is the path or name of the remote interpreter.
	Interpreter string
}

var _ Runner = (*NativeRunner)(nil)

// NewNativeRunner returns a NativeRunner using the given interpreter.
func NewNativeRunner(shell *Shell, interpreter string) *NativeRunner {
	return &NativeRunner{shell: shell, Interpreter: interpreter}
}

// Kind returns KindNative.
func (n *NativeRunner) Kind() Kind {
	return KindNative
}

func (n *NativeRunner) interpreter() string {
	if n.Interpreter == "" {
		return DefaultInterpreter
	}
	return n.Interpreter
}

type moduleRequest struct {
	Module    string `json:"module"`
	Args      any    `json:"args"`
	CheckMode bool   `json:"check_mode"`
}

// Module runs a native module and returns the common result fields along
// with the raw JSON reply for decoding module specific fields. When the
// module could not be run, the returned result is failed and carries the
// unparsed output in ModuleStdout and ModuleStderr.
func (n *NativeRunner) Module(ctx context.Context, name string, args any, checkMode bool) (*Result, []byte, error) {
	payload, err := json.Marshal(moduleRequest{Module: name, Args: args, CheckMode: checkMode})
	if err != nil {
		return nil, nil, ErrValidation.Wrapf("encode %s module arguments: %w", name, err)
	}

	out, err := n.shell.Run(ctx, sh.Join(n.interpreter(), "-c", nativeHelper), Stdin(string(payload)))
	if err != nil {
		return nil, nil, err
	}

	reply := bytes.TrimSpace([]byte(out.Stdout))
	res := &Result{}
	if len(reply) == 0 || json.Unmarshal(reply, res) != nil {
		failed := &Result{
			Failed:       true,
			ReturnCode:   out.ReturnCode,
			ModuleStdout: out.Stdout,
			ModuleStderr: out.Stderr,
			Msg:          "MODULE FAILURE: see stdout/stderr for the exact error",
		}
		if out.ReturnCode == exitNotFound {
			failed.Msg = interpreterCanary
		}
		n.Log().Debug("native module did not reply", "module", name, log.KeyExitCode, out.ReturnCode)
		return failed, nil, nil
	}
	return res, reply, nil
}

// Decode runs a native module and decodes its reply into v.
func (n *NativeRunner) Decode(ctx context.Context, name string, args any, checkMode bool, v any) (*Result, error) {
	res, reply, err := n.Module(ctx, name, args, checkMode)
	if err != nil || reply == nil {
		return res, err
	}
	if err := json.Unmarshal(reply, v); err != nil {
		return nil, fmt.Errorf("decode %s module reply: %w", name, err)
	}
	return res, nil
}

type commandArgs struct {
	Cmd        string   `json:"cmd,omitempty"`
	Argv       []string `json:"argv,omitempty"`
	Chdir      string   `json:"chdir,omitempty"`
	Executable string   `json:"executable,omitempty"`
	Creates    string   `json:"creates,omitempty"`
	Removes    string   `json:"removes,omitempty"`
	Stdin      *string  `json:"stdin,omitempty"`
	UsesShell  bool     `json:"_uses_shell"`
}

// Run executes the request with the native command module.
func (n *NativeRunner) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.SetDefaults(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	args := commandArgs{
		Cmd:        req.Cmd,
		Argv:       req.Argv,
		Chdir:      req.Chdir,
		Executable: req.Executable,
		Creates:    req.Creates,
		Removes:    req.Removes,
		UsesShell:  req.UseShell,
	}
	if stdin, ok := req.stdinData(); ok {
		args.Stdin = &stdin
	}
	res, _, err := n.Module(ctx, "command", args, req.CheckMode)
	if err != nil {
		return nil, err
	}
	res.finalize(boolValue(req.StripEmptyEnds, true))
	return res, nil
}
