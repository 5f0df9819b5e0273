package lineinfile

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/remotefs"
)

// State is the desired state of the line.
type State string

// Supported states.
const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// Special anchor values.
const (
	BOF = "BOF"
	EOF = "EOF"
)

// Options describe a line edit.
type Options struct {
	// Path is the file to edit.
	Path string `mapstructure:"path"`
	// Regexp selects the lines to replace or remove.
	Regexp *string `mapstructure:"regexp"`
	// SearchString selects the lines containing it, literally.
	SearchString *string `mapstructure:"search_string"`
	State        State   `mapstructure:"state" default:"present"`
	// Line is the line to insert or replace with. With Backrefs set it may
	// refer to groups of Regexp as \1 or \g<name>.
	Line     *string `mapstructure:"line"`
	Backrefs bool    `mapstructure:"backrefs"`
	// InsertAfter is a pattern or EOF.
	InsertAfter string `mapstructure:"insertafter"`
	// InsertBefore is a pattern or BOF.
	InsertBefore string `mapstructure:"insertbefore"`
	Create       bool   `mapstructure:"create"`
	Backup       bool   `mapstructure:"backup"`
	FirstMatch   bool   `mapstructure:"firstmatch"`
	Dedupe       *bool  `mapstructure:"dedupe" default:"true"`
	ValidateCmd  string `mapstructure:"validate"`

	remotefs.Perms `mapstructure:",squash"`
}

// SetDefaults fills in the defaults of unset options.
func (o *Options) SetDefaults() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	if o.State == StatePresent && o.InsertAfter == "" && o.InsertBefore == "" {
		o.InsertAfter = EOF
	}
	return nil
}

// Validate checks the option combinations. It does not compile patterns,
// NewPatcher does.
func (o *Options) Validate() error {
	if o.Path == "" {
		return exec.ErrValidation.Wrapf("path is required")
	}
	if o.Regexp != nil && o.SearchString != nil {
		return exec.ErrValidation.Wrapf("parameters are mutually exclusive: regexp|search_string")
	}
	if o.Backrefs && o.SearchString != nil {
		return exec.ErrValidation.Wrapf("parameters are mutually exclusive: backrefs|search_string")
	}
	if o.InsertAfter != "" && o.InsertBefore != "" {
		return exec.ErrValidation.Wrapf("parameters are mutually exclusive: insertbefore|insertafter")
	}
	switch o.State {
	case StatePresent:
		if o.Backrefs && o.Regexp == nil {
			return exec.ErrValidation.Wrapf("regexp is required with backrefs=true")
		}
		if o.Line == nil || *o.Line == "" {
			return exec.ErrValidation.Wrapf("line is required with state=present")
		}
	case StateAbsent:
		if o.Regexp == nil && o.SearchString == nil && (o.Line == nil || *o.Line == "") {
			return exec.ErrValidation.Wrapf("one of line, search_string, or regexp is required with state=absent")
		}
	default:
		return exec.ErrValidation.Wrapf("state must be one of present, absent, got %q", o.State)
	}
	return o.Perms.Validate()
}

func (o *Options) dedupe() bool {
	return o.Dedupe == nil || *o.Dedupe
}
