package remotefs

import (
	"context"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
)

// FileType is the type of a filesystem object.
type FileType string

// File types detectable with test(1).
const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "directory"
	TypeBlock     FileType = "block"
	TypeChar      FileType = "char"
	TypePipe      FileType = "pipe"
	TypeSocket    FileType = "socket"
)

var typeTests = []struct {
	t    FileType
	flag string
}{
	{TypeDirectory, "-d"},
	{TypeFile, "-f"},
	{TypeBlock, "-b"},
	{TypeChar, "-c"},
	{TypePipe, "-p"},
	{TypeSocket, "-S"},
}

// Stat describes the existence and type of a remote path. Type is empty
// exactly when Exists is false.
type Stat struct {
	Exists    bool     `json:"exists" yaml:"exists"`
	Type      FileType `json:"type,omitempty" yaml:"type,omitempty"`
	IsSymlink bool     `json:"is_symlink" yaml:"is_symlink"`
	Raw       bool     `json:"raw" yaml:"raw"`
}

// IsDir returns true if the path is an existing directory.
func (s *Stat) IsDir() bool {
	return s.Exists && s.Type == TypeDirectory
}

// Stat determines the existence and type of path using test(1). Symlinks
// are followed for the type.
func (f *FS) Stat(ctx context.Context, path string) (*Stat, error) {
	res, err := f.s.Run(ctx, "test", "-e", path)
	if err != nil {
		return nil, err
	}
	st := &Stat{Raw: res.Raw}
	if res.ReturnCode != 0 {
		return st, nil
	}
	st.Exists = true

	st.IsSymlink, err = f.s.Check(ctx, "test", "-L", path)
	if err != nil {
		return nil, err
	}

	for _, tt := range typeTests {
		ok, err := f.s.Check(ctx, "test", tt.flag, path)
		if err != nil {
			return nil, err
		}
		if ok {
			st.Type = tt.t
			f.Log().Debug("stat", log.FileAttr(path), "type", st.Type, "symlink", st.IsSymlink)
			return st, nil
		}
	}

	return nil, exec.ErrEnvironment.Wrapf("all POSIX 'test' commands failed on '%s'", path)
}
