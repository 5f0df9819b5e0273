package ssh

import (
	"github.com/o0-o/posix/errstring"
	"golang.org/x/crypto/ssh/agent"
)

// ErrSSHAgent is returned when connection to the SSH agent fails.
var ErrSSHAgent = errstring.New("connect ssh agent")

func agentClient() (agent.ExtendedAgent, error) {
	return nil, ErrSSHAgent.Wrapf("ssh agent is not supported on windows")
}
