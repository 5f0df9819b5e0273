package posix_test

import (
	"strings"
	"testing"

	"github.com/o0-o/posix"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/protocol/ssh"
	"github.com/stretchr/testify/require"
)

func noSSHConfig(t *testing.T) {
	t.Helper()
	orig := ssh.SSHConfigGet
	ssh.SSHConfigGet = func(string, string) string { return "" }
	t.Cleanup(func() { ssh.SSHConfigGet = orig })
}

const inventory = `
hosts:
  - name: web1
    connection:
      ssh:
        address: 10.0.0.1
        user: admin
  - name: router
    connection:
      ssh:
        address: 10.0.0.254
        port: 2222
    forceRaw: true
  - name: local
    connection:
      localhost:
        enabled: true
    interpreter: /usr/bin/python3
`

func TestLoadInventory(t *testing.T) {
	noSSHConfig(t)
	inv, err := posix.LoadInventory(strings.NewReader(inventory))
	require.NoError(t, err)
	require.Len(t, inv.Hosts, 3)
	require.Equal(t, []string{"local", "router", "web1"}, inv.Names())

	web := inv.Hosts[0]
	require.Equal(t, "admin", web.Connection.SSH.User)
	require.Equal(t, 22, web.Connection.SSH.Port)
	require.Equal(t, exec.DefaultInterpreter, web.Interpreter)
	require.False(t, web.ForceRaw)

	router := inv.Hosts[1]
	require.Equal(t, "root", router.Connection.SSH.User)
	require.Equal(t, 2222, router.Connection.SSH.Port)
	require.True(t, router.ForceRaw)

	local := inv.Hosts[2]
	require.True(t, local.Connection.Localhost)
	require.Equal(t, "/usr/bin/python3", local.Interpreter)
}

func TestLoadInventoryLocalhostBool(t *testing.T) {
	inv, err := posix.LoadInventory(strings.NewReader("hosts:\n  - connection:\n      localhost: true\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"localhost"}, inv.Names())
}

func TestLoadInventoryInvalid(t *testing.T) {
	noSSHConfig(t)
	tests := map[string]string{
		"unknown key":    "hosts:\n  - name: a\n    connection:\n      localhost: true\n    become: true\n",
		"no protocol":    "hosts:\n  - name: a\n    connection: {}\n",
		"two protocols":  "hosts:\n  - name: a\n    connection:\n      localhost: true\n      ssh:\n        address: 10.0.0.1\n",
		"no address":     "hosts:\n  - name: a\n    connection:\n      ssh:\n        user: admin\n",
		"duplicate name": "hosts:\n  - name: a\n    connection:\n      localhost: true\n  - name: a\n    connection:\n      localhost: true\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := posix.LoadInventory(strings.NewReader(doc))
			require.ErrorIs(t, err, posix.ErrValidationFailed)
		})
	}
}

func TestInventorySelect(t *testing.T) {
	noSSHConfig(t)
	inv, err := posix.LoadInventory(strings.NewReader(inventory))
	require.NoError(t, err)

	all, err := inv.Select()
	require.NoError(t, err)
	require.Len(t, all, 3)

	hosts, err := inv.Select("local", "web1")
	require.NoError(t, err)
	require.Equal(t, "local", hosts[0].Name)
	require.Equal(t, "web1", hosts[1].Name)

	_, err = inv.Select("db1")
	require.ErrorIs(t, err, posix.ErrHostNotFound)
}

func TestCompositeConfigConnection(t *testing.T) {
	cfg := posix.CompositeConfig{Localhost: true}
	conn, err := cfg.Connection()
	require.NoError(t, err)
	require.Equal(t, "localhost", conn.String())

	_, err = (&posix.CompositeConfig{}).Connection()
	require.ErrorIs(t, err, protocol.ErrValidationFailed)
}
