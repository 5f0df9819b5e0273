package remotefs_test

import (
	"context"
	"testing"
	"time"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/posixtest"
	"github.com/o0-o/posix/remotefs"
	"github.com/stretchr/testify/require"
)

func mockFS(mc *posixtest.MockConnection, opts ...exec.SessionOption) *remotefs.FS {
	return remotefs.New(exec.NewSession(mc, append([]exec.SessionOption{exec.WithForceRaw(true)}, opts...)...))
}

func TestStat(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandFailure(posixtest.Equal("test -L /etc"), 1, "")
	fs := mockFS(mc)

	st, err := fs.Stat(context.Background(), "/etc")
	require.NoError(t, err)
	require.True(t, st.Exists)
	require.True(t, st.IsDir())
	require.False(t, st.IsSymlink)
	require.True(t, st.Raw)
}

func TestStatFile(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.DefaultExit = 1
	mc.AddCommandOutput(posixtest.Equal("test -e /etc/hosts"), "")
	mc.AddCommandOutput(posixtest.Equal("test -L /etc/hosts"), "")
	mc.AddCommandOutput(posixtest.Equal("test -f /etc/hosts"), "")
	fs := mockFS(mc)

	st, err := fs.Stat(context.Background(), "/etc/hosts")
	require.NoError(t, err)
	require.Equal(t, remotefs.TypeFile, st.Type)
	require.True(t, st.IsSymlink)
}

func TestStatMissing(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.DefaultExit = 1
	fs := mockFS(mc)

	st, err := fs.Stat(context.Background(), "/nonexistent")
	require.NoError(t, err)
	require.False(t, st.Exists)
	require.Empty(t, st.Type)
	require.Equal(t, 1, mc.Len())
}

func TestStatNoTypeMatches(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.DefaultExit = 1
	mc.AddCommandOutput(posixtest.Equal("test -e /weird"), "")
	fs := mockFS(mc)

	_, err := fs.Stat(context.Background(), "/weird")
	require.ErrorIs(t, err, exec.ErrEnvironment)
	require.ErrorContains(t, err, "all POSIX 'test' commands failed on '/weird'")
}

func TestSymbolicMode(t *testing.T) {
	for octal, want := range map[string]string{
		"0644": "rw-r--r--",
		"644":  "rw-r--r--",
		"0700": "rwx------",
		"4755": "rwsr-xr-x",
		"2750": "rwxr-s---",
		"1777": "rwxrwxrwt",
		"1776": "rwxrwxrwT",
		"4644": "rwSr--r--",
		"0000": "---------",
	} {
		got, err := remotefs.SymbolicMode(octal)
		require.NoError(t, err, octal)
		require.Equal(t, want, got, octal)
	}

	for _, invalid := range []string{"", "u+x", "0999", "77777"} {
		_, err := remotefs.SymbolicMode(invalid)
		require.ErrorIs(t, err, exec.ErrValidation, invalid)
	}
}

func TestParseListing(t *testing.T) {
	p, err := remotefs.ParseListing("-rw-r--r-- 1 user group 123 Jul 1 00:00 file", false)
	require.NoError(t, err)
	require.Equal(t, &remotefs.Perms{Mode: "rw-r--r--", Owner: "user", Group: "group"}, p)

	p, err = remotefs.ParseListing("-rw-r--r--+ 1 user group 123 Jul 1 00:00 file", false)
	require.NoError(t, err)
	require.Equal(t, "rw-r--r--", p.Mode)

	want := &remotefs.Perms{Mode: "rw-r--r--", Owner: "user", Group: "group", SEUser: "user_u", SERole: "object_r", SEType: "etc_t", SELevel: "s0"}
	p, err = remotefs.ParseListing("user_u:object_r:etc_t:s0 -rw-r--r-- user group 123 Jul 1 00:00 file", true)
	require.NoError(t, err)
	require.Equal(t, want, p)

	p, err = remotefs.ParseListing("-rw-r--r--. 1 user group user_u:object_r:etc_t:s0 123 Jul 1 00:00 file", true)
	require.NoError(t, err)
	require.Equal(t, want, p)

	p, err = remotefs.ParseListing("drwxr-xr-x. 2 root root system_u:object_r:var_t:s0:c0.c1023 6 Jul 1 00:00 dir", true)
	require.NoError(t, err)
	require.Equal(t, "s0:c0.c1023", p.SELevel)

	_, err = remotefs.ParseListing("badselinux -rw-r--r-- user group", true)
	require.ErrorContains(t, err, "unexpected SELinux output")
}

func TestPerms(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandOutput(posixtest.Equal("ls -ld /etc/passwd"), "-rw-r--r-- 1 root wheel 2048 Jul 1 00:00 /etc/passwd\n")
	mc.AddCommandFailure(posixtest.Equal("ls -ld /nope"), 2, "ls: cannot access '/nope': No such file or directory\n")
	fs := mockFS(mc)

	p, err := fs.Perms(context.Background(), "/etc/passwd", false)
	require.NoError(t, err)
	require.Equal(t, "root", p.Owner)
	require.Equal(t, "wheel", p.Group)

	_, err = fs.Perms(context.Background(), "/nope", false)
	require.ErrorIs(t, err, exec.ErrEnvironment)
	require.ErrorContains(t, err, "stat /nope")
	require.ErrorContains(t, err, "cannot access")
}

func TestPermsDiff(t *testing.T) {
	observed := &remotefs.Perms{Mode: "rw-r--r--", Owner: "root", Group: "root"}

	key, _, _, err := (&remotefs.Perms{}).Diff(observed)
	require.NoError(t, err)
	require.Empty(t, key)

	key, _, _, err = (&remotefs.Perms{Mode: "0644", Owner: "root"}).Diff(observed)
	require.NoError(t, err)
	require.Empty(t, key)

	key, want, got, err := (&remotefs.Perms{Mode: "0600"}).Diff(observed)
	require.NoError(t, err)
	require.Equal(t, "mode", key)
	require.Equal(t, "rw-------", want)
	require.Equal(t, "rw-r--r--", got)

	key, _, got, err = (&remotefs.Perms{Group: "wheel"}).Diff(observed)
	require.NoError(t, err)
	require.Equal(t, "group", key)
	require.Equal(t, "root", got)
}

func TestWhich(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.DefaultExit = 1
	mc.AddCommandOutput(posixtest.Contains("command -v chcon"), "/usr/bin/chcon\n")
	mc.AddCommandOutput(posixtest.Contains("command -v cd"), "cd\n")
	mc.AddCommandOutput(posixtest.Equal("which semanage"), "/usr/sbin/semanage\n")
	mc.AddCommandOutput(posixtest.Equal("which echo"), "echo: shell built-in command\n")
	fs := mockFS(mc)

	for binary, want := range map[string]string{
		"chcon":    "/usr/bin/chcon",
		"cd":       "cd",
		"semanage": "/usr/sbin/semanage",
		"echo":     "echo",
		"missing":  "",
	} {
		got, err := fs.Which(context.Background(), binary)
		require.NoError(t, err)
		require.Equal(t, want, got, binary)
	}
}

func TestCheckSELinuxTools(t *testing.T) {
	perms := &remotefs.Perms{SEType: "httpd_sys_content_t"}

	t.Run("not requested", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		fs := mockFS(mc)
		ok, err := fs.CheckSELinuxTools(context.Background(), &remotefs.Perms{Mode: "0644"})
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 0, mc.Len())
	})

	t.Run("both missing", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.DefaultExit = 1
		fs := mockFS(mc)
		_, err := fs.CheckSELinuxTools(context.Background(), perms)
		require.ErrorIs(t, err, exec.ErrEnvironment)
		require.ErrorContains(t, err, "both 'chcon' and 'semanage' are missing")
	})

	t.Run("chcon missing", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.DefaultExit = 1
		mc.AddCommandOutput(posixtest.Contains("command -v semanage"), "/usr/sbin/semanage\n")
		fs := mockFS(mc)
		_, err := fs.CheckSELinuxTools(context.Background(), perms)
		require.ErrorContains(t, err, "requires 'chcon'")
	})

	t.Run("semanage missing", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.DefaultExit = 1
		mc.AddCommandOutput(posixtest.Contains("command -v chcon"), "/usr/bin/chcon\n")
		fs := mockFS(mc)
		ok, err := fs.CheckSELinuxTools(context.Background(), perms)
		require.NoError(t, err)
		require.True(t, ok)
		warnings := fs.Session().Warnings()
		require.Len(t, warnings, 1)
		require.Contains(t, warnings[0], "semanage")
	})
}

func TestApplySELinux(t *testing.T) {
	t.Run("semanage", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandOutput(posixtest.Contains("command -v semanage"), "/usr/sbin/semanage\n")
		mc.AddCommandOutput(posixtest.Contains("command -v restorecon"), "/usr/sbin/restorecon\n")
		fs := mockFS(mc)
		require.NoError(t, fs.ApplySELinux(context.Background(), "/srv/www/index.html", &remotefs.Perms{SEType: "httpd_sys_content_t"}))
		posixtest.ReceivedEqual(t, mc, "semanage fcontext -a -t httpd_sys_content_t /srv/www/index.html")
		posixtest.ReceivedEqual(t, mc, "restorecon /srv/www/index.html")
		posixtest.NotReceivedContains(t, mc, "chcon")
	})

	t.Run("chcon", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.DefaultExit = 1
		mc.AddCommandOutput(posixtest.HasPrefix("chcon "), "")
		fs := mockFS(mc)
		require.NoError(t, fs.ApplySELinux(context.Background(), "/srv/file", &remotefs.Perms{SEUser: "system_u", SEType: "var_t", SELevel: "s0"}))
		posixtest.ReceivedEqual(t, mc, "chcon -u system_u -t var_t -l s0 /srv/file")
	})

	t.Run("chcon fails", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.DefaultExit = 1
		mc.AddCommandFailure(posixtest.HasPrefix("chcon "), 1, "chcon: Operation not supported\n")
		fs := mockFS(mc)
		err := fs.ApplySELinux(context.Background(), "/srv/file", &remotefs.Perms{SEType: "var_t"})
		require.ErrorIs(t, err, exec.ErrExecution)
		require.ErrorContains(t, err, "Operation not supported")
	})
}

func TestMkdir(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		fs := mockFS(mc)
		changed, err := fs.Mkdir(context.Background(), "/srv", true, "")
		require.NoError(t, err)
		require.False(t, changed)
		posixtest.NotReceivedContains(t, mc, "mkdir")
	})

	t.Run("not a directory", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandFailure(posixtest.Equal("test -d /srv"), 1, "")
		fs := mockFS(mc)
		_, err := fs.Mkdir(context.Background(), "/srv", true, "")
		require.ErrorContains(t, err, "exists but is not a directory (file)")
	})

	t.Run("create", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandFailure(posixtest.Equal("test -e /srv/app"), 1, "")
		fs := mockFS(mc)
		changed, err := fs.Mkdir(context.Background(), "/srv/app", true, "0750")
		require.NoError(t, err)
		require.True(t, changed)
		posixtest.ReceivedEqual(t, mc, "mkdir -p -m 0750 /srv/app")
	})

	t.Run("check mode", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandFailure(posixtest.Equal("test -e /srv/app"), 1, "")
		fs := mockFS(mc, exec.WithCheckMode(true))
		changed, err := fs.Mkdir(context.Background(), "/srv/app", true, "")
		require.NoError(t, err)
		require.True(t, changed)
		posixtest.NotReceivedContains(t, mc, "mkdir")
	})

	t.Run("failure", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandFailure(posixtest.Equal("test -e /srv/app"), 1, "")
		mc.AddCommandFailure(posixtest.HasPrefix("mkdir"), 1, "mkdir: Permission denied\n")
		fs := mockFS(mc)
		_, err := fs.Mkdir(context.Background(), "/srv/app", true, "")
		require.ErrorIs(t, err, exec.ErrExecution)
		require.ErrorContains(t, err, "Permission denied")
	})

	t.Run("dest dir", func(t *testing.T) {
		mc := posixtest.NewMockConnection()
		mc.AddCommandFailure(posixtest.Equal("test -e /srv/app/conf.d"), 1, "")
		fs := mockFS(mc)
		changed, err := fs.MkDestDir(context.Background(), "/srv/app/conf.d/app.conf")
		require.NoError(t, err)
		require.True(t, changed)
		posixtest.ReceivedEqual(t, mc, "mkdir -p /srv/app/conf.d")
	})
}

func TestBackupPath(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	require.Regexp(t, `^/etc/hosts\.[0-9a-f]{32}\.20250304050607$`, remotefs.BackupPath("/etc/hosts", at))
	require.Equal(t, remotefs.BackupPath("/etc/hosts", at), remotefs.BackupPath("/etc/hosts", at.In(time.FixedZone("X", 3600))))
}

func TestBackup(t *testing.T) {
	mc := posixtest.NewMockConnection()
	fs := mockFS(mc)
	backup, err := fs.Backup(context.Background(), "/etc/hosts")
	require.NoError(t, err)
	require.Regexp(t, `^/etc/hosts\.[0-9a-f]{32}\.[0-9]{14}$`, backup)
	posixtest.ReceivedWithPrefix(t, mc, "cp --preserve=all /etc/hosts /etc/hosts.")

	mc = posixtest.NewMockConnection()
	mc.AddCommandFailure(posixtest.Equal("test -e /etc/hosts"), 1, "")
	fs = mockFS(mc)
	backup, err = fs.Backup(context.Background(), "/etc/hosts")
	require.NoError(t, err)
	require.Empty(t, backup)
}

func TestValidate(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandFailure(posixtest.HasPrefix("visudo"), 1, "parse error in /tmp/x near line 3\n")
	fs := mockFS(mc)

	require.NoError(t, fs.Validate(context.Background(), "/tmp/x", ""))
	require.NoError(t, fs.Validate(context.Background(), "/tmp/x", "nginx -t -c %s"))
	posixtest.ReceivedEqual(t, mc, "nginx -t -c /tmp/x")

	err := fs.Validate(context.Background(), "/tmp/x", "visudo -cf %s")
	require.ErrorIs(t, err, exec.ErrExecution)
	require.ErrorContains(t, err, "parse error")
}

func TestNormalizeContent(t *testing.T) {
	lines, text, err := remotefs.NormalizeContent("hello\nworld")
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, lines)
	require.Equal(t, "hello\nworld\n", text)

	lines, text, err = remotefs.NormalizeContent([]any{"a", 1, 2.5})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "1", "2.5"}, lines)
	require.Equal(t, "a\n1\n2.5\n", text)

	lines, _, err = remotefs.NormalizeContent([]string{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, lines)

	for _, invalid := range []any{nil, 123, []any{struct{}{}}, []any{"foo", map[string]string{}}} {
		_, _, err := remotefs.NormalizeContent(invalid)
		require.ErrorIs(t, err, exec.ErrValidation)
	}
}

func TestSplitLines(t *testing.T) {
	require.Equal(t, []string{}, remotefs.SplitLines(""))
	require.Equal(t, []string{"a"}, remotefs.SplitLines("a\n"))
	require.Equal(t, []string{"a", ""}, remotefs.SplitLines("a\n\n"))
	require.Equal(t, []string{"a", "b"}, remotefs.SplitLines("a\r\nb"))
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := remotefs.UnifiedDiff("/etc/motd", []string{"old content"}, []string{"new content"})
	require.NoError(t, err)
	require.Equal(t, "--- /etc/motd\n+++ /etc/motd\n@@ -1 +1 @@\n-old content\n+new content", diff)
}
