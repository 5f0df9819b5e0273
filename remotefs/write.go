package remotefs

import (
	"context"
	"slices"
	"strings"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/pmezard/go-difflib/difflib"
)

// WriteOptions are the optional parts of a write.
type WriteOptions struct {
	// Perms is the desired ownership, mode and SELinux context.
	Perms Perms
	// Backup copies an existing destination aside before it is replaced.
	Backup bool
	// Validate is a command template run against the staged file. Its %s
	// is replaced with the path of the staged file.
	Validate string
}

// Diff describes a content change.
type Diff struct {
	BeforeHeader string `json:"before_header" yaml:"before_header"`
	AfterHeader  string `json:"after_header" yaml:"after_header"`
	Before       string `json:"before" yaml:"before"`
	After        string `json:"after" yaml:"after"`
	UnifiedDiff  string `json:"unified_diff" yaml:"unified_diff"`
}

// WriteResult is the outcome of a write.
type WriteResult struct {
	Changed    bool   `json:"changed" yaml:"changed"`
	Msg        string `json:"msg" yaml:"msg"`
	ReturnCode int    `json:"rc" yaml:"rc"`
	BackupFile string `json:"backup_file,omitempty" yaml:"backup_file,omitempty"`
	Diff       *Diff  `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// UnifiedDiff returns a unified diff between two line sequences, without a
// trailing newline.
func UnifiedDiff(name string, before, after []string) (string, error) {
	terminate := func(lines []string) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = l + "\n"
		}
		return out
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(before),
		B:        terminate(after),
		FromFile: name,
		ToFile:   name,
		Context:  3,
	})
	if err != nil {
		return "", exec.ErrExecution.Wrapf("generate diff: %w", err)
	}
	return strings.TrimSuffix(text, "\n"), nil
}

// Write writes content to dest atomically and idempotently. Content is a
// string or a sequence of strings and numbers. The content is staged in
// the private temporary directory of the session and only moved into
// place when it or the requested permissions differ from the destination.
// In check mode the destination is never touched.
func (f *FS) Write(ctx context.Context, content any, dest string, opts WriteOptions) (*WriteResult, error) {
	ctx, err := exec.Enter(ctx, OpWrite)
	if err != nil {
		return nil, err
	}
	if err := opts.Perms.Validate(); err != nil {
		return nil, err
	}
	lines, normalized, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat(ctx, dest)
	if err != nil {
		return nil, err
	}
	if st.Exists && st.Type != TypeFile {
		return nil, exec.ErrEnvironment.Wrapf("cannot write over %s", st.Type)
	}

	selinux, err := f.CheckSELinuxTools(ctx, &opts.Perms)
	if err != nil {
		return nil, err
	}

	tmpDir, err := f.s.TmpDir(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := f.Mkdir(ctx, tmpDir, true, "0700"); err != nil {
		return nil, err
	}
	tmpFile, err := f.s.TmpFile(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.writeTemp(ctx, lines, tmpFile); err != nil {
		return nil, err
	}

	if err := f.Validate(ctx, tmpFile, opts.Validate); err != nil {
		return nil, err
	}

	result := &WriteResult{}
	if opts.Backup && !f.s.CheckMode {
		if result.BackupFile, err = f.Backup(ctx, dest); err != nil {
			return nil, err
		}
	}

	changed, oldContent, oldLines, err := f.compare(ctx, dest, lines, &opts.Perms, selinux)
	if err != nil {
		return nil, err
	}
	result.Changed = changed

	if f.s.Diff && changed {
		unified, err := UnifiedDiff(dest, oldLines, lines)
		if err != nil {
			return nil, err
		}
		result.Diff = &Diff{
			BeforeHeader: dest,
			AfterHeader:  dest,
			Before:       oldContent,
			After:        normalized,
			UnifiedDiff:  unified,
		}
	}

	switch {
	case f.s.CheckMode && changed:
		result.Msg = "Check mode: changes would have been made."
	case f.s.CheckMode:
		result.Msg = "Check mode: no changes needed."
	case changed:
		if err := f.mustRun(ctx, "move temp file into place", "mv", tmpFile, dest); err != nil {
			return nil, err
		}
		if err := f.applyPerms(ctx, dest, &opts.Perms, selinux); err != nil {
			return nil, err
		}
		result.Msg = "File written successfully"
	default:
		result.Msg = "File not changed"
	}

	f.Log().Debug("write finished", log.FileAttr(dest), "changed", changed)
	return result, nil
}

// writeTemp stages the lines in file and restricts it to the owner.
func (f *FS) writeTemp(ctx context.Context, lines []string, file string) error {
	data := ""
	if len(lines) > 0 {
		data = strings.Join(lines, "\n") + "\n"
	}
	res, err := f.s.RunStdin(ctx, data, "tee", file)
	if err != nil {
		return err
	}
	if res.ReturnCode != 0 {
		return exec.NewStepError(exec.ErrExecution, "write temp file "+file, res)
	}
	return f.mustRun(ctx, "chmod temp file", "chmod", "0600", file)
}

// compare reports whether dest differs from the wanted lines or
// permissions, along with the current content and lines of dest.
func (f *FS) compare(ctx context.Context, dest string, lines []string, perms *Perms, selinux bool) (bool, string, []string, error) {
	st, err := f.Stat(ctx, dest)
	if err != nil {
		return false, "", nil, err
	}
	if !st.Exists {
		return true, "", []string{}, nil
	}

	old, err := f.Slurp(ctx, dest)
	if err != nil {
		return false, "", nil, err
	}
	changed := !slices.Equal(lines, old.ContentLines)
	if changed {
		log.Trace(ctx, "content differs", log.KeyFile, dest)
	}

	observed, err := f.Perms(ctx, dest, selinux)
	if err != nil {
		return false, "", nil, err
	}
	key, want, got, err := perms.Diff(observed)
	if err != nil {
		return false, "", nil, err
	}
	if key != "" {
		log.Trace(ctx, "permissions differ", log.KeyFile, dest, "field", key, "want", want, "got", got)
		changed = true
	}

	return changed, old.Content, old.ContentLines, nil
}

// applyPerms applies ownership, mode and SELinux context to dest and
// verifies the result.
func (f *FS) applyPerms(ctx context.Context, dest string, perms *Perms, selinux bool) error {
	if perms.Owner != "" {
		if err := f.mustRun(ctx, "chown "+dest, "chown", perms.Owner, dest); err != nil {
			return err
		}
	}
	if perms.Group != "" {
		if err := f.mustRun(ctx, "chgrp "+dest, "chgrp", perms.Group, dest); err != nil {
			return err
		}
	}
	if perms.Mode != "" {
		if err := f.mustRun(ctx, "chmod "+dest, "chmod", perms.Mode, dest); err != nil {
			return err
		}
	}
	if selinux {
		if err := f.ApplySELinux(ctx, dest, perms); err != nil {
			return err
		}
	}

	if perms.IsZero() {
		return nil
	}
	final, err := f.Perms(ctx, dest, selinux)
	if err != nil {
		return err
	}
	key, want, got, err := perms.Diff(final)
	if err != nil {
		return err
	}
	if key != "" {
		return exec.ErrWriteVerification.Wrapf("post-apply verification failed: expected %s=%s, got %s", key, want, got)
	}
	return nil
}
