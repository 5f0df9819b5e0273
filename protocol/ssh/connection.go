// Package ssh provides a transport implementation for SSH connections.
package ssh

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/protocol"
	ssh "golang.org/x/crypto/ssh"
)

var _ protocol.Connection = (*Connection)(nil)

var (
	// ErrHostKeyMismatch is returned when the host key does not match the configured key or a key in known_hosts.
	ErrHostKeyMismatch = errors.New("ssh host key mismatch")

	// ErrNoSignerFound is returned when no signer is found for a key.
	ErrNoSignerFound = errors.New("no signer found for key")

	errNotConnected = errors.New("not connected")

	defaultKeypaths = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}
	authMethodCache = sync.Map{}
)

// Connection describes an SSH connection.
type Connection struct {
	log.LoggerInjectable
	Config

	client   *ssh.Client
	keyPaths []string
}

// NewConnection creates a new SSH connection from the given configuration.
func NewConnection(cfg Config) (*Connection, error) {
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Connection{Config: cfg}
	cfg.InjectLoggerTo(c, log.KeyProtocol, "ssh")
	c.keyPaths = c.identityFiles()
	return c, nil
}

// Protocol returns the protocol name, "SSH".
func (c *Connection) Protocol() string {
	return "SSH"
}

// IPAddress returns the connection address.
func (c *Connection) IPAddress() string {
	return c.Address
}

// String returns the connection's printable name.
func (c *Connection) String() string {
	return c.Endpoint.String()
}

// IsConnected returns true if the client is connected.
func (c *Connection) IsConnected() bool {
	return c.client != nil
}

// Disconnect closes the SSH connection.
func (c *Connection) Disconnect() {
	if c.client == nil {
		return
	}
	_ = c.client.Close()
	c.client = nil
}

func (c *Connection) identityFiles() []string {
	var candidates []string
	if c.KeyPath != nil {
		candidates = []string{*c.KeyPath}
	} else if idf := SSHConfigGetAll(c.Address, "IdentityFile"); len(idf) > 0 {
		candidates = idf
	} else {
		candidates = defaultKeypaths
	}

	var paths []string
	for _, p := range candidates {
		expanded, err := homedir.Expand(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(expanded); err != nil {
			log.Trace(context.Background(), "identity file not found", log.KeyFile, expanded)
			continue
		}
		paths = append(paths, expanded)
	}
	return paths
}

func keyString(k ssh.PublicKey) string {
	return k.Type() + " " + base64.StdEncoding.EncodeToString(k.Marshal())
}

func trustedHostKeyCallback(trustedKey string) ssh.HostKeyCallback {
	return func(_ string, _ net.Addr, k ssh.PublicKey) error {
		if trustedKey != keyString(k) {
			return ErrHostKeyMismatch
		}
		return nil
	}
}

func (c *Connection) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{User: c.User}

	if c.HostKey != "" {
		config.HostKeyCallback = trustedHostKeyCallback(c.HostKey)
	} else {
		hkc, err := knownHostsCallback(c.Address)
		if err != nil {
			return nil, err
		}
		config.HostKeyCallback = hkc
	}

	var signers []ssh.Signer
	agent, err := agentClient()
	if err != nil {
		log.Trace(context.Background(), "ssh agent not available", log.ErrorAttr(err))
	} else {
		signers, err = agent.Signers()
		if err != nil {
			c.Log().Debug("failed to list signers from ssh agent", log.ErrorAttr(err))
		}
	}

	for _, keyPath := range c.keyPaths {
		if am, ok := authMethodCache.Load(keyPath); ok {
			if authM, ok := am.(ssh.AuthMethod); ok {
				config.Auth = append(config.Auth, authM)
			}
			continue
		}
		authM, err := c.pkeySigner(signers, keyPath)
		if err != nil {
			c.Log().Debug("failed to obtain a signer for identity", log.KeyFile, keyPath, log.ErrorAttr(err))
			authMethodCache.Store(keyPath, err)
			continue
		}
		authMethodCache.Store(keyPath, authM)
		config.Auth = append(config.Auth, authM)
	}

	if c.KeyPath == nil && len(signers) > 0 {
		c.Log().Debug("using all keys from ssh agent", "count", len(signers))
		config.Auth = append(config.Auth, ssh.PublicKeys(signers...))
	}

	if len(config.Auth) == 0 {
		return nil, fmt.Errorf("%w: no usable authentication method found", protocol.ErrAbort)
	}

	return config, nil
}

// Connect opens the SSH connection.
func (c *Connection) Connect() error {
	config, err := c.clientConfig()
	if err != nil {
		return protocol.ErrConnectionFailed.Wrap(err)
	}

	dst := c.Endpoint.String()

	if c.Bastion == nil {
		client, err := ssh.Dial("tcp", dst, config)
		if err != nil {
			return protocol.ErrConnectionFailed.Wrapf("ssh dial: %w", err)
		}
		c.client = client
		return nil
	}

	bastion, err := NewConnection(*c.Bastion)
	if err != nil {
		return fmt.Errorf("bastion: %w", err)
	}
	if err := bastion.Connect(); err != nil {
		return fmt.Errorf("bastion: %w", err)
	}
	bconn, err := bastion.client.Dial("tcp", dst)
	if err != nil {
		return protocol.ErrConnectionFailed.Wrapf("bastion dial: %w", err)
	}
	conn, chans, reqs, err := ssh.NewClientConn(bconn, dst, config)
	if err != nil {
		return protocol.ErrConnectionFailed.Wrapf("bastion client connect: %w", err)
	}
	c.client = ssh.NewClient(conn, chans, reqs)

	return nil
}

func (c *Connection) pubkeySigner(signers []ssh.Signer, key ssh.PublicKey) (ssh.AuthMethod, error) {
	for _, s := range signers {
		if bytes.Equal(key.Marshal(), s.PublicKey().Marshal()) {
			return ssh.PublicKeys(s), nil
		}
	}
	return nil, fmt.Errorf("the provided key is a public key and is not known by agent: %w", ErrNoSignerFound)
}

func (c *Connection) pkeySigner(signers []ssh.Signer, path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	if pubKey, _, _, _, err := ssh.ParseAuthorizedKey(key); err == nil {
		return c.pubkeySigner(signers, pubKey)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return ssh.PublicKeys(signer), nil
	}

	var ppErr *ssh.PassphraseMissingError
	if errors.As(err, &ppErr) {
		if len(signers) > 0 {
			if am, err := c.pkeySigner(signers, path+".pub"); err == nil {
				return am, nil
			}
		}
		if c.PasswordCallback != nil {
			pass, err := c.PasswordCallback()
			if err != nil {
				return nil, fmt.Errorf("password provider failed: %w", err)
			}
			signer, err := ssh.ParsePrivateKeyWithPassphrase(key, []byte(pass))
			if err != nil {
				return nil, fmt.Errorf("protected key decoding failed: %w", err)
			}
			return ssh.PublicKeys(signer), nil
		}
	}

	return nil, fmt.Errorf("can't parse keyfile %s: %w", path, err)
}

type session struct {
	*ssh.Session
	done chan struct{}
}

// Wait waits for the remote command to exit and closes the session. A
// non-zero exit is reported as *ssh.ExitError, anything else is a transport
// failure.
func (s *session) Wait() error {
	defer close(s.done)
	defer s.Session.Close()
	err := s.Session.Wait()
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return err //nolint:wrapcheck
	}
	return protocol.ErrConnectionFailed.Wrapf("ssh session wait: %w", err)
}

// StartProcess executes a command on the remote host using the passed in streams for stdin, stdout and stderr.
func (c *Connection) StartProcess(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (protocol.Waiter, error) {
	if c.client == nil {
		return nil, protocol.ErrConnectionFailed.Wrap(errNotConnected)
	}

	sess, err := c.client.NewSession()
	if err != nil {
		return nil, protocol.ErrConnectionFailed.Wrapf("create ssh session: %w", err)
	}

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Start(cmd); err != nil {
		_ = sess.Close()
		return nil, protocol.ErrConnectionFailed.Wrapf("start session: %w", err)
	}

	s := &session{Session: sess, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGINT)
			_ = sess.Close()
		case <-s.done:
		}
	}()

	return s, nil
}
