//go:build !windows

package ssh

import (
	"net"
	"os"

	"github.com/o0-o/posix/errstring"
	"golang.org/x/crypto/ssh/agent"
)

// ErrSSHAgent is returned when connection to the SSH agent fails.
var ErrSSHAgent = errstring.New("connect ssh agent")

func agentClient() (agent.ExtendedAgent, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, ErrSSHAgent.Wrapf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, ErrSSHAgent.Wrapf("can't connect to ssh agent: %w", err)
	}
	return agent.NewClient(conn), nil
}
