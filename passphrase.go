package posix

import (
	"fmt"
	"os"

	"github.com/o0-o/posix/protocol/ssh"
	"golang.org/x/term"
)

// DefaultPasswordCallback asks for a private key passphrase on the
// terminal. The prompt goes to stderr so it does not mix with results
// written to stdout.
func DefaultPasswordCallback() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%w: stdin is not a terminal, can not ask for a passphrase", ErrCantConnect)
	}
	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pass), nil
}

var _ ssh.PasswordCallback = DefaultPasswordCallback

// SetPasswordCallback sets the passphrase callback of the SSH hosts in the
// inventory that do not have one.
func (i *Inventory) SetPasswordCallback(cb ssh.PasswordCallback) {
	for _, h := range i.Hosts {
		if h.Connection.SSH != nil && h.Connection.SSH.PasswordCallback == nil {
			h.Connection.SSH.PasswordCallback = cb
		}
	}
}
