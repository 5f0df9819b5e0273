package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/o0-o/posix/protocol"
	ssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var knownHostsMu sync.Mutex

func knownHostsPath(address string) (string, bool, error) {
	if path, ok := os.LookupEnv("SSH_KNOWN_HOSTS"); ok {
		// an empty SSH_KNOWN_HOSTS disables host key checking
		return path, path == "", nil
	}
	path := filepath.Join("~", ".ssh", "known_hosts")
	if files := SSHConfigGetAll(address, "UserKnownHostsFile"); len(files) > 0 && files[0] != "" {
		path = files[0]
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", false, fmt.Errorf("expand known_hosts path %s: %w", path, err)
	}
	return expanded, false, nil
}

// knownHostsCallback validates host keys against the known_hosts file and
// records keys of hosts that are not yet known.
func knownHostsCallback(address string) (ssh.HostKeyCallback, error) {
	path, insecure, err := knownHostsPath(address)
	if err != nil {
		return nil, err
	}
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}

	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create known_hosts directory: %w", protocol.ErrAbort, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: access known_hosts file %s: %w", protocol.ErrAbort, path, err)
	}
	_ = f.Close()

	hkc, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create known_hosts callback: %w", protocol.ErrAbort, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := hkc(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err //nolint:wrapcheck
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w: %w", ErrHostKeyMismatch, err)
		}

		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open known_hosts file %s for writing: %w", path, err)
		}
		defer f.Close()
		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		if _, err := f.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write known_hosts file %s: %w", path, err)
		}
		return nil
	}, nil
}
