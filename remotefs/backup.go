package remotefs

import (
	"context"
	"crypto/md5" //nolint:gosec // used for naming, not security
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hhkbp2/go-strftime"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/sh"
)

// now is replaceable for tests
var now = time.Now

// BackupPath returns the backup file name for path at the given time, in
// the form <path>.<md5 of path>.<UTC YYYYMMDDHHMMSS>.
func BackupPath(path string, at time.Time) string {
	sum := md5.Sum([]byte(path)) //nolint:gosec
	return fmt.Sprintf("%s.%s.%s", path, hex.EncodeToString(sum[:]), strftime.Format("%Y%m%d%H%M%S", at.UTC()))
}

// Backup copies dest to a backup file preserving its attributes. It
// returns the backup path or an empty string when dest does not exist.
func (f *FS) Backup(ctx context.Context, dest string) (string, error) {
	exists, err := f.s.Check(ctx, "test", "-e", dest)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}
	backup := BackupPath(dest, now())
	f.Log().Debug("creating backup", log.FileAttr(dest), "backup", backup)
	if err := f.mustRun(ctx, "backup", "cp", "--preserve=all", dest, backup); err != nil {
		return "", err
	}
	return backup, nil
}

// Validate runs the validation command template against file. The first %s
// in the template is replaced with the quoted path of the file.
func (f *FS) Validate(ctx context.Context, file, template string) error {
	if template == "" {
		return nil
	}
	res, err := f.s.Command(ctx, &exec.Request{Cmd: sh.Substitute(template, file)})
	if err != nil {
		return err
	}
	if res.ReturnCode != 0 {
		return exec.NewStepError(exec.ErrExecution, "validate ("+template+")", res)
	}
	return nil
}
