package ssh_test

import (
	"testing"

	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/protocol/ssh"
	"github.com/stretchr/testify/require"
)

func stubSSHConfig(t *testing.T, values map[string]string) {
	t.Helper()
	origGet := ssh.SSHConfigGet
	origGetAll := ssh.SSHConfigGetAll
	t.Cleanup(func() {
		ssh.SSHConfigGet = origGet
		ssh.SSHConfigGetAll = origGetAll
	})
	ssh.SSHConfigGet = func(alias, key string) string {
		return values[alias+"/"+key]
	}
	ssh.SSHConfigGetAll = func(alias, key string) []string {
		if v, ok := values[alias+"/"+key]; ok {
			return []string{v}
		}
		return nil
	}
}

func TestConfigSetDefaults(t *testing.T) {
	stubSSHConfig(t, nil)
	cfg := &ssh.Config{Endpoint: protocol.Endpoint{Address: "10.0.0.1"}}
	require.NoError(t, cfg.SetDefaults())
	require.Equal(t, 22, cfg.Port)
	require.Equal(t, "root", cfg.User)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "ssh.Config{10.0.0.1:22}", cfg.String())
}

func TestConfigFromSSHConfig(t *testing.T) {
	stubSSHConfig(t, map[string]string{
		"web/HostName": "192.168.1.10",
		"web/Port":     "2222",
		"web/User":     "admin",
	})
	cfg := &ssh.Config{Endpoint: protocol.Endpoint{Address: "web"}}
	require.NoError(t, cfg.SetDefaults())
	require.Equal(t, "192.168.1.10", cfg.Address)
	require.Equal(t, 2222, cfg.Port)
	require.Equal(t, "admin", cfg.User)
}

func TestConfigValidate(t *testing.T) {
	cfg := &ssh.Config{Endpoint: protocol.Endpoint{Address: "h", Port: 22}}
	require.ErrorIs(t, cfg.Validate(), protocol.ErrValidationFailed)
}
