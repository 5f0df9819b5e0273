// Package localhost provides a transport to the local host using the os/exec package.
package localhost

import (
	"context"
	"io"
	"os/exec"

	"github.com/o0-o/posix/protocol"
)

var _ protocol.Connection = (*Connection)(nil)

// Connection is a direct localhost connection.
type Connection struct{}

// NewConnection creates a new localhost connection.
func NewConnection() *Connection {
	return &Connection{}
}

// Connection returns the connection itself as there is no configuration for localhost.
func (c *Connection) Connection() (protocol.Connection, error) {
	return c, nil
}

// Protocol returns the protocol name, "Local".
func (c *Connection) Protocol() string {
	return "Local"
}

// IPAddress returns the connection address.
func (c *Connection) IPAddress() string {
	return "127.0.0.1"
}

// String returns the connection's printable name.
func (c *Connection) String() string {
	return "localhost"
}

// StartProcess runs the command through "sh -c" using the passed in streams for stdin, stdout
// and stderr. The returned Waiter blocks until the command finishes and returns an
// *exec.ExitError if the exit code is not zero.
func (c *Connection) StartProcess(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (protocol.Waiter, error) {
	command := exec.CommandContext(ctx, "sh", "-c", "--", cmd)

	command.Stdin = stdin
	command.Stdout = stdout
	command.Stderr = stderr

	if err := command.Start(); err != nil {
		return nil, protocol.ErrConnectionFailed.Wrapf("start command: %w", err)
	}

	return command, nil
}
