package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, argv ...string) (int, string, string) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(context.Background(), argv, strings.NewReader(stdin), stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseDf(t *testing.T) {
	input := "Filesystem 1024-blocks Used Available Capacity Mounted on\n/dev/sda1 1000 400 600 40% /\n"
	code, stdout, stderr := runCLI(t, input, "parse", "df")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "filesystem: /dev/sda1")
	require.Contains(t, stdout, "total: 1024000")
	require.Contains(t, stdout, "mounted_on: /")
}

func TestParseFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte("NAME=\"Alpine Linux\"\nID=alpine\n"), 0o600))

	code, stdout, stderr := runCLI(t, "", "-o", "json", "parse", "os-release", path)
	require.Equal(t, 0, code, stderr)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	require.Equal(t, "alpine", rec["id"])
}

func TestParseUnknown(t *testing.T) {
	code, _, stderr := runCLI(t, "", "parse", "ifconfig")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "parser 'ifconfig' not found")
}

func TestInvalidOutputFormat(t *testing.T) {
	code, _, stderr := runCLI(t, "", "-o", "xml", "parse", "df")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "invalid output format")
}

func TestInvalidArgs(t *testing.T) {
	code, _, stderr := runCLI(t, "", "lineinfile", "path")
	require.Equal(t, 3, code)
	require.Contains(t, stderr, "expected key=value")
}

func TestHostRequiresInventory(t *testing.T) {
	code, _, stderr := runCLI(t, "", "-H", "web1", "hosts")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "--host requires --inventory")
}

func TestHostsFromInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts:\n  - name: local\n    connection:\n      localhost: true\n"), 0o600))

	code, stdout, stderr := runCLI(t, "", "-i", path, "hosts")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "local: localhost\n", stdout)
}

func TestLoadVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: web\nport: 8080\n"), 0o600))

	vars, err := loadVars(path, []string{"name=db"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "db", "port": 8080}, vars)
}

func TestLocalCommand(t *testing.T) {
	code, stdout, stderr := runCLI(t, "", "-o", "json", "command", "--", "echo", "hello")
	require.Equal(t, 0, code, stderr)

	var out map[string]struct {
		Failed bool `json:"failed"`
		Result struct {
			Stdout string `json:"stdout"`
			RC     int    `json:"rc"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Contains(t, out, "localhost")
	require.False(t, out["localhost"].Failed)
	require.Equal(t, "hello", out["localhost"].Result.Stdout)
}

func TestLocalCommandFailure(t *testing.T) {
	code, stdout, _ := runCLI(t, "", "--force-raw", "command", "--", "false")
	require.Equal(t, 2, code)
	require.Contains(t, stdout, "failed: true")
}
