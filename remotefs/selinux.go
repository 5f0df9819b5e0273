package remotefs

import (
	"context"

	"github.com/o0-o/posix/exec"
)

// CheckSELinuxTools returns true if perms requests an SELinux context. It
// fails when chcon is not available and warns through the session when
// semanage is missing, as contexts set without it may not survive a
// relabel.
func (f *FS) CheckSELinuxTools(ctx context.Context, perms *Perms) (bool, error) {
	if !perms.SELinux() {
		return false, nil
	}

	chcon, err := f.Which(ctx, "chcon")
	if err != nil {
		return false, err
	}
	semanage, err := f.Which(ctx, "semanage")
	if err != nil {
		return false, err
	}
	f.Log().Debug("selinux tools", "chcon", chcon, "semanage", semanage)

	if chcon == "" {
		if semanage == "" {
			return false, exec.ErrEnvironment.Wrapf("SELinux parameters were specified, but both 'chcon' and 'semanage' are missing on the remote host")
		}
		return false, exec.ErrEnvironment.Wrapf("SELinux requires 'chcon' to apply contexts, but it is missing on the remote host")
	}

	if semanage == "" {
		f.s.Warn("chcon is available but semanage is not, SELinux context changes may not persist")
	}

	return true, nil
}

// ApplySELinux applies the SELinux context of perms to dest. When semanage
// and restorecon are both available and a type is requested the context
// is registered persistently and restored, otherwise chcon is used.
func (f *FS) ApplySELinux(ctx context.Context, dest string, perms *Perms) error {
	if !perms.SELinux() {
		return nil
	}

	semanage, err := f.Which(ctx, "semanage")
	if err != nil {
		return err
	}
	restorecon, err := f.Which(ctx, "restorecon")
	if err != nil {
		return err
	}

	if semanage != "" && restorecon != "" && perms.SEType != "" {
		if err := f.mustRun(ctx, "register SELinux context with semanage", "semanage", "fcontext", "-a", "-t", perms.SEType, dest); err != nil {
			return err
		}
		return f.mustRun(ctx, "apply SELinux context with restorecon", "restorecon", dest)
	}

	args := []string{"chcon"}
	if perms.SEUser != "" {
		args = append(args, "-u", perms.SEUser)
	}
	if perms.SERole != "" {
		args = append(args, "-r", perms.SERole)
	}
	if perms.SEType != "" {
		args = append(args, "-t", perms.SEType)
	}
	if perms.SELevel != "" {
		args = append(args, "-l", perms.SELevel)
	}
	args = append(args, dest)
	return f.mustRun(ctx, "set SELinux context with chcon", args...)
}

// mustRun runs the arguments and turns a non-zero exit into a step error.
func (f *FS) mustRun(ctx context.Context, step string, args ...string) error {
	res, err := f.s.Run(ctx, args...)
	if err != nil {
		return err
	}
	if res.ReturnCode != 0 {
		return exec.NewStepError(exec.ErrExecution, step, res)
	}
	return nil
}
