// Package lineinfile ensures a line is present in or absent from a remote
// file and removes duplicates of it, writing through remotefs so it works
// on hosts without an interpreter.
package lineinfile

import (
	"context"
	"fmt"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/remotefs"
)

// Op is the operation tag of Run.
const Op exec.Operation = "lineinfile"

// Return codes of a destination that can not be edited.
const (
	CodeNotAFile    = 256
	CodeDestMissing = 257
)

// PathError is returned when the destination is not a regular file or
// does not exist and may not be created.
type PathError struct {
	Path string
	Code int
	Msg  string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return e.Msg
}

// ExitCode returns the return code associated with the error.
func (e *PathError) ExitCode() int {
	return e.Code
}

// Unwrap returns exec.ErrEnvironment.
func (e *PathError) Unwrap() error {
	return exec.ErrEnvironment
}

// Result is the outcome of Run.
type Result struct {
	Changed    bool           `json:"changed" yaml:"changed"`
	Msg        string         `json:"msg" yaml:"msg"`
	Found      *int           `json:"found,omitempty" yaml:"found,omitempty"`
	Raw        bool           `json:"raw" yaml:"raw"`
	ReturnCode int            `json:"rc" yaml:"rc"`
	BackupFile string         `json:"backup_file,omitempty" yaml:"backup_file,omitempty"`
	Diff       *remotefs.Diff `json:"diff,omitempty" yaml:"diff,omitempty"`
	Plan       *Plan          `json:"-" yaml:"-"`
}

// Run applies the options to the file on the host behind the session. The
// temporary directory of the session is removed before returning.
func Run(ctx context.Context, s *exec.Session, o *Options) (*Result, error) {
	ctx, err := exec.Enter(ctx, Op)
	if err != nil {
		return nil, err
	}
	defer s.Cleanup(ctx)

	if err := o.SetDefaults(); err != nil {
		return nil, err
	}
	p, warnings, err := NewPatcher(o)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.Warn(w)
	}

	fs := remotefs.New(s)
	st, err := fs.Stat(ctx, o.Path)
	if err != nil {
		return nil, err
	}
	switch {
	case st.Exists && st.Type != remotefs.TypeFile:
		return nil, &PathError{Path: o.Path, Code: CodeNotAFile, Msg: fmt.Sprintf("Path %s is a %s!", o.Path, st.Type)}
	case !st.Exists && !o.Create:
		return nil, &PathError{Path: o.Path, Code: CodeDestMissing, Msg: fmt.Sprintf("Destination %s does not exist!", o.Path)}
	}

	lines := []string{}
	if st.Exists {
		slurp, err := fs.Slurp(ctx, o.Path)
		if err != nil {
			return nil, fmt.Errorf("could not read contents of %s: %w", o.Path, err)
		}
		lines = slurp.ContentLines
	}

	res := &Result{}
	var out []string
	if o.State == StateAbsent {
		var found int
		out, found, res.Msg = p.Absent(lines)
		res.Found = &found
	} else {
		if o.Create && !st.Exists {
			created, err := fs.MkDestDir(ctx, o.Path)
			if err != nil {
				return nil, err
			}
			res.Changed = created
		}
		out, res.Plan, res.Msg, err = p.Present(lines)
		if err != nil {
			return nil, err
		}
	}

	wr, err := fs.Write(ctx, out, o.Path, remotefs.WriteOptions{
		Perms:    o.Perms,
		Backup:   o.Backup,
		Validate: o.ValidateCmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	res.Changed = res.Changed || wr.Changed
	res.ReturnCode = wr.ReturnCode
	res.BackupFile = wr.BackupFile
	res.Diff = wr.Diff
	res.Raw = s.IsRaw()

	s.Log().Debug("lineinfile finished", log.FileAttr(o.Path), "changed", res.Changed, "msg", res.Msg)
	return res, nil
}
