package template_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/posixtest"
	"github.com/o0-o/posix/protocol/localhost"
	"github.com/o0-o/posix/remotefs"
	"github.com/o0-o/posix/template"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o640))
	}
	return fs
}

func TestTextRendererTrimBlocks(t *testing.T) {
	r := &template.TextRenderer{TrimBlocks: true}
	out, err := r.Render("t", "{{if .on}}\nenabled\n{{end}}\ndone\n", map[string]any{"on": true})
	require.NoError(t, err)
	require.Equal(t, "enabled\ndone\n", out)

	r.TrimBlocks = false
	out, err = r.Render("t", "{{if .on}}\nenabled\n{{end}}\ndone\n", map[string]any{"on": true})
	require.NoError(t, err)
	require.Equal(t, "\nenabled\n\ndone\n", out)
}

func TestTextRendererLstripBlocks(t *testing.T) {
	r := &template.TextRenderer{TrimBlocks: true, LstripBlocks: true}
	out, err := r.Render("t", "hosts:\n  {{range .hosts}}\n  - {{.}}\n  {{end}}\n", map[string]any{"hosts": []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, "hosts:\n  - a\n  - b\n", out)
}

func TestTextRendererDelims(t *testing.T) {
	r := &template.TextRenderer{LeftDelim: "[[", RightDelim: "]]"}
	out, err := r.Render("t", "name=[[ .name ]] {{ not a tag }}", map[string]any{"name": "web"})
	require.NoError(t, err)
	require.Equal(t, "name=web {{ not a tag }}", out)
}

func TestTextRendererErrors(t *testing.T) {
	r := &template.TextRenderer{}
	_, err := r.Render("t", "{{if}}", nil)
	require.ErrorIs(t, err, exec.ErrValidation)

	_, err = r.Render("t", "{{ .missing }}", map[string]any{})
	require.ErrorIs(t, err, exec.ErrExecution)
}

func TestRender(t *testing.T) {
	tpl := template.New(memFS(t, map[string]string{"/tpl/motd.tmpl": "Welcome to {{ .site }}\nfrom {{ .template_path }}\n"}))
	o := &template.Options{Src: "/tpl/motd.tmpl", Dest: "/etc/motd", Vars: map[string]any{"site": "lab"}, NewlineSequence: "\r\n"}
	require.NoError(t, o.SetDefaults())

	out, err := tpl.Render(o)
	require.NoError(t, err)
	require.Equal(t, "Welcome to lab\r\nfrom /tpl/motd.tmpl\r\n", out)
}

func TestOptionsValidate(t *testing.T) {
	o := &template.Options{Src: "a"}
	require.NoError(t, o.SetDefaults())
	require.ErrorIs(t, o.Validate(), exec.ErrValidation)

	o = &template.Options{Src: "a", Dest: "b", NewlineSequence: "\t"}
	require.NoError(t, o.SetDefaults())
	require.ErrorContains(t, o.Validate(), "newline_sequence")

	o = &template.Options{Src: "a", Dest: "b", Perms: remotefs.Perms{Mode: template.ModePreserve}}
	require.NoError(t, o.SetDefaults())
	require.NoError(t, o.Validate())
}

func TestRunNativeCopy(t *testing.T) {
	mc := posixtest.NewMockConnection()
	var args map[string]any
	mc.AddCommand(posixtest.HasPrefix("python3 -c"), func(a *posixtest.A) error {
		var req struct {
			Module    string         `json:"module"`
			Args      map[string]any `json:"args"`
			CheckMode bool           `json:"check_mode"`
		}
		data, err := io.ReadAll(a.Stdin)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		args = req.Args
		_, err = io.WriteString(a.Stdout, `{"changed": true, "rc": 0, "dest": "/etc/motd", "checksum": "abc", "before": "old\n"}`)
		return err
	})
	s := exec.NewSession(mc, exec.WithDiff(true))
	tpl := template.New(memFS(t, map[string]string{"/tpl/motd.tmpl": "new {{ .n }}\n"}))

	res, err := tpl.Run(context.Background(), s, &template.Options{
		Src:   "/tpl/motd.tmpl",
		Dest:  "/etc/motd",
		Vars:  map[string]any{"n": 1},
		Perms: remotefs.Perms{Mode: template.ModePreserve, Owner: "root"},
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.False(t, res.Raw)
	require.Equal(t, "abc", res.Checksum)
	require.NotNil(t, res.Diff)
	require.Contains(t, res.Diff.UnifiedDiff, "-old\n+new 1")

	require.Equal(t, "/etc/motd", args["dest"])
	require.Equal(t, "0640", args["mode"])
	require.Equal(t, "root", args["owner"])
	require.Equal(t, true, args["force"])
	content, err := base64.StdEncoding.DecodeString(args["content"].(string))
	require.NoError(t, err)
	require.Equal(t, "new 1\n", string(content))
}

func TestRunNativeFailure(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandOutput(posixtest.HasPrefix("python3 -c"), `{"failed": true, "rc": 1, "msg": "failed to validate: rc:1 error:bad"}`)
	s := exec.NewSession(mc)
	tpl := template.New(memFS(t, map[string]string{"/t": "x"}))

	_, err := tpl.Run(context.Background(), s, &template.Options{Src: "/t", Dest: "/etc/x"})
	require.ErrorIs(t, err, exec.ErrExecution)
	require.ErrorContains(t, err, "failed to validate")
	require.False(t, s.IsRaw())
}

func TestRunFallsBackWithoutInterpreter(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandFailure(posixtest.HasPrefix("python3 -c"), 127, "sh: python3: not found")
	mc.DefaultExit = 1
	mc.AddCommandOutput(posixtest.Equal("test -e /etc"), "")
	mc.AddCommandOutput(posixtest.Equal("test -d /etc"), "")
	mc.AddCommandOutput(posixtest.Equal("test -e /etc/x"), "")
	mc.AddCommandOutput(posixtest.Equal("test -f /etc/x"), "")
	s := exec.NewSession(mc)
	tpl := template.New(memFS(t, map[string]string{"/t": "x"}))
	force := false

	res, err := tpl.Run(context.Background(), s, &template.Options{Src: "/t", Dest: "/etc/x", Force: &force})
	require.NoError(t, err)
	require.True(t, res.Raw)
	require.False(t, res.Changed)
	require.Equal(t, "File exists and force is disabled, taking no action", res.Msg)
	require.True(t, s.IsRaw())
	require.NotEmpty(t, s.Warnings())
	posixtest.NotReceivedContains(t, mc, "tee")
}

func TestRunMissingSource(t *testing.T) {
	mc := posixtest.NewMockConnection()
	tpl := template.New(afero.NewMemMapFs())

	_, err := tpl.Run(context.Background(), exec.NewSession(mc), &template.Options{Src: "/nope", Dest: "/etc/x"})
	require.ErrorIs(t, err, exec.ErrValidation)
	require.Zero(t, mc.Len())
}

func TestRunRaw(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app.conf.tmpl")
	require.NoError(t, os.WriteFile(src, []byte("{{range .ports}}\nport={{.}}\n{{end}}\n"), 0o600))
	dest := filepath.Join(t.TempDir(), "etc", "app.conf")
	s := exec.NewSession(localhost.NewConnection(), exec.WithForceRaw(true))
	o := func() *template.Options {
		return &template.Options{
			Src:   src,
			Dest:  dest,
			Vars:  map[string]any{"ports": []int{80, 443}},
			Perms: remotefs.Perms{Mode: template.ModePreserve},
		}
	}

	res, err := template.Run(context.Background(), s, o())
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.True(t, res.Raw)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "port=80\nport=443\n", string(data))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	res, err = template.Run(context.Background(), s, o())
	require.NoError(t, err)
	require.False(t, res.Changed)
}

func TestRunRawValidateCmd(t *testing.T) {
	src := filepath.Join(t.TempDir(), "motd.tmpl")
	require.NoError(t, os.WriteFile(src, []byte("site={{ .site }}\n"), 0o644))
	dest := filepath.Join(t.TempDir(), "motd")
	s := exec.NewSession(localhost.NewConnection(), exec.WithForceRaw(true))
	vars := map[string]any{"site": "lab"}

	_, err := template.Run(context.Background(), s, &template.Options{Src: src, Dest: dest, Vars: vars, ValidateCmd: "grep -q prod %s"})
	require.ErrorIs(t, err, exec.ErrExecution)
	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))

	res, err := template.Run(context.Background(), s, &template.Options{Src: src, Dest: dest, Vars: vars, ValidateCmd: "grep -q lab %s"})
	require.NoError(t, err)
	require.True(t, res.Changed)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "site=lab\n", string(data))
}
