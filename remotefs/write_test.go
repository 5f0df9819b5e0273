package remotefs_test

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/protocol/localhost"
	"github.com/o0-o/posix/remotefs"
	"github.com/stretchr/testify/require"
)

func localFS(t *testing.T, opts ...exec.SessionOption) *remotefs.FS {
	t.Helper()
	s := exec.NewSession(localhost.NewConnection(), append([]exec.SessionOption{exec.WithForceRaw(true)}, opts...)...)
	t.Cleanup(func() { s.Cleanup(context.Background()) })
	return remotefs.New(s)
}

func TestWriteNewFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "motd")
	fs := localFS(t)

	res, err := fs.Write(context.Background(), "hello\nworld\n", dest, remotefs.WriteOptions{})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, 0, res.ReturnCode)
	require.Equal(t, "File written successfully", res.Msg)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello\nworld\n", string(data))

	slurp, err := fs.Slurp(context.Background(), dest)
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, slurp.ContentLines)
	require.True(t, slurp.Raw)
}

func TestWriteIdempotent(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "app.conf")
	fs := localFS(t)
	opts := remotefs.WriteOptions{Perms: remotefs.Perms{Mode: "0640"}}

	res, err := fs.Write(context.Background(), []string{"key=value", "other=1"}, dest, opts)
	require.NoError(t, err)
	require.True(t, res.Changed)
	first, err := os.ReadFile(dest)
	require.NoError(t, err)
	firstInfo, err := os.Stat(dest)
	require.NoError(t, err)

	res, err = fs.Write(context.Background(), []string{"key=value", "other=1"}, dest, opts)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, "File not changed", res.Msg)

	second, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, first, second)
	secondInfo, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, firstInfo.Mode(), secondInfo.Mode())
}

func TestWriteMode(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "secret")
	fs := localFS(t)

	_, err := fs.Write(context.Background(), "s3cr3t", dest, remotefs.WriteOptions{Perms: remotefs.Perms{Mode: "0700"}})
	require.NoError(t, err)

	perms, err := fs.Perms(context.Background(), dest, false)
	require.NoError(t, err)
	require.Equal(t, "rwx------", perms.Mode)

	res, err := fs.Write(context.Background(), "s3cr3t", dest, remotefs.WriteOptions{Perms: remotefs.Perms{Mode: "0600"}})
	require.NoError(t, err)
	require.True(t, res.Changed, "a mode change alone is a change")
	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteOwnership(t *testing.T) {
	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "owned")
	fs := localFS(t)
	res, err := fs.Write(context.Background(), "x", dest, remotefs.WriteOptions{Perms: remotefs.Perms{Owner: u.Username, Group: g.Name, Mode: "0640"}})
	require.NoError(t, err)
	require.True(t, res.Changed)

	perms, err := fs.Perms(context.Background(), dest, false)
	require.NoError(t, err)
	require.Equal(t, "rw-r-----", perms.Mode)
}

func TestWriteCheckModeAndDiff(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "motd")
	require.NoError(t, os.WriteFile(dest, []byte("old content\n"), 0o644))
	fs := localFS(t, exec.WithCheckMode(true), exec.WithDiff(true))

	res, err := fs.Write(context.Background(), "new content\n", dest, remotefs.WriteOptions{Backup: true})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "Check mode: changes would have been made.", res.Msg)
	require.Empty(t, res.BackupFile)
	require.NotNil(t, res.Diff)
	require.Equal(t, "old content\n", res.Diff.Before)
	require.Equal(t, "new content\n", res.Diff.After)
	require.Contains(t, res.Diff.UnifiedDiff, "-old content\n+new content")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "old content\n", string(data))

	res, err = fs.Write(context.Background(), "old content", dest, remotefs.WriteOptions{})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, "Check mode: no changes needed.", res.Msg)
	require.Nil(t, res.Diff)
}

func TestWriteCheckModeNewFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "new")
	fs := localFS(t, exec.WithCheckMode(true))

	res, err := fs.Write(context.Background(), "content", dest, remotefs.WriteOptions{})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.NoFileExists(t, dest)
}

func TestWriteBackupAndValidate(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "conf")
	require.NoError(t, os.WriteFile(dest, []byte("existing\n"), 0o644))
	fs := localFS(t)

	res, err := fs.Write(context.Background(), "new", dest, remotefs.WriteOptions{Backup: true, Validate: "grep -q new %s"})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.NotEmpty(t, res.BackupFile)

	backup, err := os.ReadFile(res.BackupFile)
	require.NoError(t, err)
	require.Equal(t, "existing\n", string(backup))
}

func TestWriteValidationFails(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "conf")
	require.NoError(t, os.WriteFile(dest, []byte("existing\n"), 0o644))
	fs := localFS(t)

	_, err := fs.Write(context.Background(), "new", dest, remotefs.WriteOptions{Validate: "grep -q missing %s"})
	require.ErrorIs(t, err, exec.ErrExecution)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "existing\n", string(data))
}

func TestWriteOverDirectory(t *testing.T) {
	fs := localFS(t)
	_, err := fs.Write(context.Background(), "x", t.TempDir(), remotefs.WriteOptions{})
	require.ErrorIs(t, err, exec.ErrEnvironment)
	require.ErrorContains(t, err, "cannot write over directory")
}

func TestWriteInvalidMode(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "conf")
	fs := localFS(t)
	_, err := fs.Write(context.Background(), "x", dest, remotefs.WriteOptions{Perms: remotefs.Perms{Mode: "u=rw"}})
	require.ErrorIs(t, err, exec.ErrValidation)
	require.NoFileExists(t, dest)
}

func TestWriteTempDirRemoved(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "conf")
	s := exec.NewSession(localhost.NewConnection(), exec.WithForceRaw(true))
	fs := remotefs.New(s)

	_, err := fs.Write(context.Background(), "x", dest, remotefs.WriteOptions{})
	require.NoError(t, err)
	tmp, err := s.TmpDir(context.Background())
	require.NoError(t, err)
	require.DirExists(t, tmp)

	s.Cleanup(context.Background())
	require.NoDirExists(t, tmp)
}
