package remotefs

import (
	"context"
	"path"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
)

// Mkdir makes sure path is a directory. It reports whether the directory
// was (or in check mode would be) created. An existing non-directory at
// path is an error.
func (f *FS) Mkdir(ctx context.Context, dir string, parents bool, mode string) (bool, error) {
	if mode != "" {
		if _, err := SymbolicMode(mode); err != nil {
			return false, err
		}
	}
	st, err := f.Stat(ctx, dir)
	if err != nil {
		return false, err
	}
	if st.IsDir() {
		log.Trace(ctx, "directory exists", log.KeyFile, dir)
		return false, nil
	}
	if st.Exists {
		return false, exec.ErrEnvironment.Wrapf("path '%s' exists but is not a directory (%s)", dir, st.Type)
	}
	if f.s.CheckMode {
		return true, nil
	}

	args := []string{"mkdir"}
	if parents {
		args = append(args, "-p")
	}
	if mode != "" {
		args = append(args, "-m", mode)
	}
	args = append(args, dir)
	if err := f.mustRun(ctx, "create directory "+dir, args...); err != nil {
		return false, err
	}
	return true, nil
}

// MkDestDir creates the parent directory of file if it does not exist.
func (f *FS) MkDestDir(ctx context.Context, file string) (bool, error) {
	dir := path.Dir(file)
	if dir == "." || dir == "/" {
		return false, nil
	}
	return f.Mkdir(ctx, dir, true, "")
}
