package exec

import (
	"fmt"

	"github.com/creasty/defaults"
)

// Request describes a command to run on the remote host.
type Request struct {
	// Cmd is a command line. It is split into words unless UseShell is set.
	Cmd string `mapstructure:"cmd" yaml:"cmd,omitempty"`
	// Argv is the command as a list of arguments.
	Argv []string `mapstructure:"argv" yaml:"argv,omitempty"`
	// Chdir is the directory to run the command in.
	Chdir string `mapstructure:"chdir" yaml:"chdir,omitempty"`
	// Executable is the shell used when UseShell is set.
	Executable string `mapstructure:"executable" yaml:"executable,omitempty"`
	// Creates skips the command when the path exists.
	Creates string `mapstructure:"creates" yaml:"creates,omitempty"`
	// Removes skips the command when the path does not exist.
	Removes string `mapstructure:"removes" yaml:"removes,omitempty"`
	// Stdin is fed to the command's standard input.
	Stdin *string `mapstructure:"stdin" yaml:"stdin,omitempty"`

	StdinAddNewline    *bool `mapstructure:"stdin_add_newline" yaml:"stdin_add_newline,omitempty" default:"true"`
	StripEmptyEnds     *bool `mapstructure:"strip_empty_ends" yaml:"strip_empty_ends,omitempty" default:"true"`
	UseShell           bool  `mapstructure:"_uses_shell" yaml:"_uses_shell,omitempty"`
	ExpandArgumentVars *bool `mapstructure:"expand_argument_vars" yaml:"expand_argument_vars,omitempty"`

	// CheckMode reports what would happen without running the command.
	CheckMode bool `mapstructure:"-" yaml:"-"`
}

// Argv returns a request for running the given arguments.
func Argv(args ...string) *Request {
	return &Request{Argv: args}
}

// ShellCmd returns a request for running cmd through the shell.
func ShellCmd(cmd string) *Request {
	return &Request{Cmd: cmd, UseShell: true}
}

// WithStdin sets the standard input of the request and returns it.
func (r *Request) WithStdin(stdin string) *Request {
	r.Stdin = &stdin
	return r
}

// SetDefaults fills in unset optional flags.
func (r *Request) SetDefaults() error {
	if err := defaults.Set(r); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	return nil
}

// Validate checks that exactly one of Cmd or Argv is given.
func (r *Request) Validate() error {
	hasCmd := r.Cmd != ""
	hasArgv := len(r.Argv) > 0
	switch {
	case !hasCmd && !hasArgv:
		return ErrValidation.Wrapf("one of 'cmd', or 'argv' must be specified")
	case hasCmd && hasArgv:
		return ErrValidation.Wrapf("only one of 'cmd', or 'argv' can be specified")
	}
	return nil
}

func boolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// stdinData returns the standard input with a trailing newline added when requested.
func (r *Request) stdinData() (string, bool) {
	if r.Stdin == nil {
		return "", false
	}
	data := *r.Stdin
	if data != "" && boolValue(r.StdinAddNewline, true) && data[len(data)-1] != '\n' {
		data += "\n"
	}
	return data, true
}
