// Package mounts gathers the mount table of a host and classifies each
// mount by its storage class.
//
// Virtual mounts (proc, sysfs, tmpfs and the like) never carry a source,
// whatever the mount table printed in the source column. An empty Source on
// a virtual entry is expected and does not mean the line failed to parse.
// Sources that only repeat the filesystem name are dropped as well.
package mounts

import (
	"context"
	"errors"
	"sort"

	"github.com/creasty/defaults"
	"github.com/dustin/go-humanize"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/parse"
	"github.com/o0-o/posix/protocol"
)

// Op is the operation tag of Gather.
const Op exec.Operation = "mounts"

// Size is a byte count with its human readable form.
type Size struct {
	Bytes  uint64 `json:"bytes" yaml:"bytes"`
	Pretty string `json:"pretty" yaml:"pretty"`
}

// NewSize returns the size of n bytes formatted in binary units.
func NewSize(n uint64) Size {
	return Size{Bytes: n, Pretty: humanize.IBytes(n)}
}

// Capacity is the size and usage of a mounted filesystem.
type Capacity struct {
	Total Size `json:"total" yaml:"total"`
	Used  Size `json:"used" yaml:"used"`
}

// Entry is one mount point.
type Entry struct {
	MountPoint string         `json:"-" yaml:"-"`
	// Source is empty for virtual mounts.
	Source     string         `json:"source,omitempty" yaml:"source,omitempty"`
	Type       Type           `json:"type,omitempty" yaml:"type,omitempty"`
	Filesystem string         `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`
	Pseudo     *bool          `json:"pseudo,omitempty" yaml:"pseudo,omitempty"`
	Fuse       bool           `json:"fuse" yaml:"fuse"`
	Options    map[string]any `json:"options" yaml:"options"`
	Capacity   *Capacity      `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// Table is the mount table keyed by mount point.
type Table map[string]*Entry

// MountPoints returns the mount points in lexical order.
func (t Table) MountPoints() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build normalizes parsed mount records into a table. A mount point that
// appears more than once is reported with its last entry.
func Build(records []parse.MountRecord) Table {
	t := make(Table, len(records))
	for _, rec := range records {
		if rec.MountPoint == "" {
			continue
		}
		t[rec.MountPoint] = NewEntry(rec)
	}
	return t
}

// MergeDf adds the capacity reported by df to the matching entries.
func (t Table) MergeDf(records []parse.DfRecord) {
	for _, rec := range records {
		if e, ok := t[rec.MountedOn]; ok {
			e.Capacity = &Capacity{Total: NewSize(rec.Total), Used: NewSize(rec.Used)}
		}
	}
}

// Filters selects which classes of mounts are reported.
type Filters struct {
	Device  *bool `mapstructure:"device" yaml:"device" default:"true"`
	Virtual bool  `mapstructure:"virtual" yaml:"virtual"`
	Network *bool `mapstructure:"network" yaml:"network" default:"true"`
	// Pseudo defaults to the value of Virtual.
	Pseudo  *bool `mapstructure:"pseudo" yaml:"pseudo"`
	Overlay *bool `mapstructure:"overlay" yaml:"overlay" default:"true"`
	Fuse    *bool `mapstructure:"fuse" yaml:"fuse" default:"true"`
}

// SetDefaults sets the default values.
func (f *Filters) SetDefaults() error {
	if err := defaults.Set(f); err != nil {
		return exec.ErrValidation.Wrap(err)
	}
	if f.Pseudo == nil {
		pseudo := f.Virtual
		f.Pseudo = &pseudo
	}
	return nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// Include returns true if the entry passes the filters.
func (f *Filters) Include(e *Entry) bool {
	switch e.Type {
	case TypeDevice:
		if !enabled(f.Device) {
			return false
		}
	case TypeVirtual:
		if !f.Virtual {
			return false
		}
		if f.Pseudo != nil && !*f.Pseudo && e.Pseudo != nil && *e.Pseudo {
			return false
		}
	case TypeNetwork:
		if !enabled(f.Network) {
			return false
		}
	case TypeOverlay:
		if !enabled(f.Overlay) {
			return false
		}
	}
	return !e.Fuse || enabled(f.Fuse)
}

// Filter returns a new table with the entries that pass the filters.
func (t Table) Filter(f *Filters) Table {
	out := make(Table, len(t))
	for k, e := range t {
		if f.Include(e) {
			out[k] = e
		}
	}
	return out
}

// Result is the outcome of Gather.
type Result struct {
	Changed bool  `json:"changed" yaml:"changed"`
	Raw     bool  `json:"raw" yaml:"raw"`
	Mounts  Table `json:"mounts" yaml:"mounts"`
}

// Gather reads the mount table of the host with mount(8) and adds the
// capacity reported by df -P. Failing to run df only loses the capacity.
func Gather(ctx context.Context, s *exec.Session, f *Filters) (*Result, error) {
	ctx, err := exec.Enter(ctx, Op)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = &Filters{}
	}
	if err := f.SetDefaults(); err != nil {
		return nil, err
	}

	res, err := s.Run(ctx, "mount")
	if err != nil {
		return nil, exec.ErrExecution.Wrapf("failed to execute mount command: %w", err)
	}
	if !res.OK() {
		return nil, exec.NewStepError(exec.ErrExecution, "execute mount command", res)
	}
	records, err := parse.Mount(parse.Input(res))
	if err != nil {
		return nil, err
	}
	table := Build(records).Filter(f)

	if err := mergeDf(ctx, s, table); err != nil {
		return nil, err
	}

	s.Log().Debug("gathered mounts", log.KeyHost, s.String(), "count", len(table))
	return &Result{Raw: s.IsRaw(), Mounts: table}, nil
}

func mergeDf(ctx context.Context, s *exec.Session, table Table) error {
	res, err := s.Run(ctx, "df", "-P")
	switch {
	case errors.Is(err, protocol.ErrConnectionFailed):
		return err
	case err != nil:
		log.Trace(ctx, "failed to get df data, continuing without capacity", log.ErrorAttr(err))
		return nil
	case !res.OK():
		log.Trace(ctx, "df failed, continuing without capacity", "rc", res.ReturnCode, "stderr", res.Stderr)
		return nil
	}
	records, err := parse.Df(parse.Input(res))
	if err != nil {
		s.Warn("failed to parse df output, continuing without capacity")
		return nil //nolint:nilerr
	}
	table.MergeDf(records)
	return nil
}
