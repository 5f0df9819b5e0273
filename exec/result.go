package exec

import (
	"strings"
	"time"

	"github.com/o0-o/posix/sh"
)

// Result is the outcome of a single command execution.
type Result struct {
	Changed    bool     `json:"changed" yaml:"changed"`
	Skipped    bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Failed     bool     `json:"failed,omitempty" yaml:"failed,omitempty"`
	Raw        bool     `json:"raw" yaml:"raw"`
	ReturnCode int      `json:"rc" yaml:"rc"`
	Cmd        []string `json:"cmd,omitempty" yaml:"cmd,omitempty"`
	Msg        string   `json:"msg" yaml:"msg"`

	Stdout      string   `json:"stdout" yaml:"stdout"`
	Stderr      string   `json:"stderr" yaml:"stderr"`
	StdoutLines []string `json:"stdout_lines,omitempty" yaml:"stdout_lines,omitempty"`
	StderrLines []string `json:"stderr_lines,omitempty" yaml:"stderr_lines,omitempty"`

	// ModuleStdout and ModuleStderr hold the unparsed output of a native
	// module that did not produce a result.
	ModuleStdout string `json:"module_stdout,omitempty" yaml:"module_stdout,omitempty"`
	ModuleStderr string `json:"module_stderr,omitempty" yaml:"module_stderr,omitempty"`

	Start *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	Delta string     `json:"delta,omitempty" yaml:"delta,omitempty"`
}

// OK returns true when the command exited with zero.
func (r *Result) OK() bool {
	return r.ReturnCode == 0 && !r.Failed
}

// CommandLine returns the executed command as a single line.
func (r *Result) CommandLine() string {
	switch len(r.Cmd) {
	case 0:
		return ""
	case 1:
		return r.Cmd[0]
	default:
		return sh.Join(r.Cmd...)
	}
}

// splitLines splits s on newlines the way a line reader would: a trailing
// newline does not produce an empty last element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// Lines returns stdout split into lines without line terminators.
func (r *Result) Lines() []string {
	if r.StdoutLines != nil {
		return r.StdoutLines
	}
	return splitLines(r.Stdout)
}

// finalize strips trailing line terminators when requested and fills the
// line slices so they always mirror stdout and stderr.
func (r *Result) finalize(strip bool) {
	if strip {
		r.Stdout = strings.TrimRight(r.Stdout, "\r\n")
		r.Stderr = strings.TrimRight(r.Stderr, "\r\n")
	}
	r.StdoutLines = splitLines(r.Stdout)
	r.StderrLines = splitLines(r.Stderr)
	if r.Start != nil && r.End != nil {
		r.Delta = r.End.Sub(*r.Start).String()
	}
}
