// Package template renders a local template and installs the result on a
// remote host, through the native copy module when the host has an
// interpreter and through remotefs otherwise.
package template

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/remotefs"
	"github.com/spf13/afero"
)

// Op is the operation tag of Run.
const Op exec.Operation = "template"

// ModePreserve copies the mode of the template source to the destination.
const ModePreserve = "preserve"

// Options describe a template installation.
type Options struct {
	Src  string         `mapstructure:"src"`
	Dest string         `mapstructure:"dest"`
	Vars map[string]any `mapstructure:"vars"`

	// Force replaces an existing destination. When false an existing
	// destination is left alone.
	Force       *bool  `mapstructure:"force" default:"true"`
	Backup      bool   `mapstructure:"backup"`
	ValidateCmd string `mapstructure:"validate"`

	NewlineSequence     string `mapstructure:"newline_sequence"`
	TrimBlocks          *bool  `mapstructure:"trim_blocks" default:"true"`
	LstripBlocks        bool   `mapstructure:"lstrip_blocks"`
	VariableStartString string `mapstructure:"variable_start_string" default:"{{"`
	VariableEndString   string `mapstructure:"variable_end_string" default:"}}"`

	remotefs.Perms `mapstructure:",squash"`
}

// SetDefaults fills in the defaults of unset options.
func (o *Options) SetDefaults() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	if o.NewlineSequence == "" {
		o.NewlineSequence = "\n"
	}
	return nil
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.Src == "" || o.Dest == "" {
		return exec.ErrValidation.Wrapf("src and dest are required")
	}
	switch o.NewlineSequence {
	case "\n", "\r", "\r\n":
	default:
		return exec.ErrValidation.Wrapf("newline_sequence must be one of \\n, \\r or \\r\\n, got %q", o.NewlineSequence)
	}
	if o.Mode == ModePreserve {
		return nil
	}
	return o.Perms.Validate()
}

func (o *Options) force() bool {
	return o.Force == nil || *o.Force
}

// Result is the outcome of Run.
type Result struct {
	Changed    bool           `json:"changed" yaml:"changed"`
	Msg        string         `json:"msg" yaml:"msg"`
	Raw        bool           `json:"raw" yaml:"raw"`
	ReturnCode int            `json:"rc" yaml:"rc"`
	Dest       string         `json:"dest" yaml:"dest"`
	Checksum   string         `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	BackupFile string         `json:"backup_file,omitempty" yaml:"backup_file,omitempty"`
	Diff       *remotefs.Diff `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Template renders templates read from a local filesystem.
type Template struct {
	log.LoggerInjectable

	fs afero.Fs

	// Renderer overrides the text/template renderer built from the options.
	Renderer Renderer
}

// New returns a Template reading sources from fs.
func New(fs afero.Fs) *Template {
	return &Template{fs: fs}
}

// Run renders and installs a template using sources from the local
// filesystem.
func Run(ctx context.Context, s *exec.Session, o *Options) (*Result, error) {
	return New(afero.NewOsFs()).Run(ctx, s, o)
}

// Render renders the source of o and returns the content with the
// requested newline sequence.
func (t *Template) Render(o *Options) (string, error) {
	text, err := afero.ReadFile(t.fs, o.Src)
	if err != nil {
		return "", exec.ErrValidation.Wrapf("read template %s: %w", o.Src, err)
	}

	var r Renderer = NewTextRenderer(o)
	if t.Renderer != nil {
		r = t.Renderer
	}
	out, err := r.Render(filepath.Base(o.Src), string(text), t.vars(o))
	if err != nil {
		return "", err
	}
	if o.NewlineSequence != "\n" {
		out = strings.ReplaceAll(out, "\n", o.NewlineSequence)
	}
	return out, nil
}

// vars returns the template variables: the caller's plus information about
// the template itself.
func (t *Template) vars(o *Options) map[string]any {
	data := make(map[string]any, len(o.Vars)+5)
	for k, v := range o.Vars {
		data[k] = v
	}
	full, err := filepath.Abs(o.Src)
	if err != nil {
		full = o.Src
	}
	data["template_path"] = o.Src
	data["template_fullpath"] = full
	data["template_destpath"] = o.Dest
	data["template_run_date"] = time.Now()
	if host, err := os.Hostname(); err == nil {
		data["template_host"] = host
	}
	if u, err := user.Current(); err == nil {
		data["template_uid"] = u.Username
	}
	return data
}

// Run renders the template and installs the result at the destination.
// The temporary directory of the session is removed before returning.
func (t *Template) Run(ctx context.Context, s *exec.Session, o *Options) (*Result, error) {
	ctx, err := exec.Enter(ctx, Op)
	if err != nil {
		return nil, err
	}
	defer s.Cleanup(ctx)
	s.InjectLoggerTo(t, log.KeyComponent, "template")

	if err := o.SetDefaults(); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	perms := o.Perms
	if perms.Mode == ModePreserve {
		info, err := t.fs.Stat(o.Src)
		if err != nil {
			return nil, exec.ErrValidation.Wrapf("stat template %s: %w", o.Src, err)
		}
		perms.Mode = fmt.Sprintf("0%03o", info.Mode().Perm())
	}

	content, err := t.Render(o)
	if err != nil {
		return nil, err
	}

	if !s.IsRaw() && !perms.SELinux() {
		res, err := t.nativeCopy(ctx, s, o, perms, content)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	res, err := t.rawWrite(ctx, s, o, perms, content)
	if err != nil {
		return nil, fmt.Errorf("template rendering or writing failed: %w", err)
	}
	return res, nil
}

type copyArgs struct {
	Dest       string `json:"dest"`
	Content    string `json:"content"`
	Mode       string `json:"mode,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Group      string `json:"group,omitempty"`
	Force      bool   `json:"force"`
	Validate   string `json:"validate,omitempty"`
	BackupFile string `json:"backup_file,omitempty"`
}

type copyReply struct {
	Dest       string  `json:"dest"`
	Checksum   string  `json:"checksum"`
	Before     *string `json:"before"`
	BackupFile string  `json:"backup_file"`
}

// nativeCopy returns nil without an error when the interpreter is missing.
func (t *Template) nativeCopy(ctx context.Context, s *exec.Session, o *Options, perms remotefs.Perms, content string) (*Result, error) {
	args := copyArgs{
		Dest:     o.Dest,
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		Mode:     perms.Mode,
		Owner:    perms.Owner,
		Group:    perms.Group,
		Force:    o.force(),
		Validate: o.ValidateCmd,
	}
	if o.Backup {
		args.BackupFile = remotefs.BackupPath(o.Dest, time.Now())
	}

	var reply copyReply
	res, err := s.Native().Decode(ctx, "copy", args, s.CheckMode, &reply)
	if err != nil {
		return nil, err
	}
	if s.FallbackIfMissing(Op, res) {
		t.Log().Debug("interpreter missing, writing raw", log.FileAttr(o.Dest))
		return nil, nil
	}
	if res.Failed {
		return nil, exec.NewStepError(exec.ErrExecution, "copy "+o.Dest, res)
	}

	out := &Result{
		Changed:    res.Changed,
		Msg:        res.Msg,
		ReturnCode: res.ReturnCode,
		Dest:       o.Dest,
		Checksum:   reply.Checksum,
		BackupFile: reply.BackupFile,
	}
	if s.Diff && res.Changed {
		before := ""
		if reply.Before != nil {
			before = *reply.Before
		}
		unified, err := remotefs.UnifiedDiff(o.Dest, remotefs.SplitLines(before), remotefs.SplitLines(content))
		if err != nil {
			return nil, err
		}
		out.Diff = &remotefs.Diff{
			BeforeHeader: o.Dest,
			AfterHeader:  o.Dest,
			Before:       before,
			After:        content,
			UnifiedDiff:  unified,
		}
	}
	return out, nil
}

func (t *Template) rawWrite(ctx context.Context, s *exec.Session, o *Options, perms remotefs.Perms, content string) (*Result, error) {
	fs := remotefs.New(s)
	out := &Result{Raw: true, Dest: o.Dest}

	created, err := fs.MkDestDir(ctx, o.Dest)
	if err != nil {
		return nil, err
	}
	out.Changed = created

	if !o.force() {
		st, err := fs.Stat(ctx, o.Dest)
		if err != nil {
			return nil, err
		}
		if st.Exists {
			out.Msg = "File exists and force is disabled, taking no action"
			return out, nil
		}
	}

	wr, err := fs.Write(ctx, content, o.Dest, remotefs.WriteOptions{
		Perms:    perms,
		Backup:   o.Backup,
		Validate: o.ValidateCmd,
	})
	if err != nil {
		return nil, err
	}
	out.Changed = out.Changed || wr.Changed
	out.Msg = wr.Msg
	out.ReturnCode = wr.ReturnCode
	out.BackupFile = wr.BackupFile
	out.Diff = wr.Diff
	return out, nil
}
