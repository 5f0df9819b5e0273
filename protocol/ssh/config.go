package ssh

import (
	"context"
	"fmt"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/kevinburke/ssh_config"
	"github.com/mitchellh/go-homedir"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/protocol"
)

var _ protocol.ConnectionConfigurer = (*Config)(nil)

// PasswordCallback is called when a passphrase is needed to decrypt a private key.
type PasswordCallback func() (secret string, err error)

// Config describes an SSH connection's configuration.
type Config struct {
	log.LoggerInjectable `yaml:"-"`
	protocol.Endpoint    `yaml:",inline"`
	User                 string           `yaml:"user" default:"root"`
	KeyPath              *string          `yaml:"keyPath,omitempty"`
	HostKey              string           `yaml:"hostKey,omitempty"`
	Bastion              *Config          `yaml:"bastion,omitempty"`
	PasswordCallback     PasswordCallback `yaml:"-"`
}

// SSHConfigGet points to the ssh_config package's Get function and can be
// overridden in tests.
var SSHConfigGet = ssh_config.Get

// SSHConfigGetAll points to the ssh_config package's GetAll function and can be
// overridden in tests.
var SSHConfigGetAll = ssh_config.GetAll

// SetDefaults fills in unset values from the user's ssh configuration and
// the struct's default tags.
func (c *Config) SetDefaults() error {
	if alias := c.Address; alias != "" {
		if hostname := SSHConfigGet(alias, "HostName"); hostname != "" && hostname != alias {
			log.Trace(context.Background(), "address resolved from ssh config", log.KeyHost, alias, "hostname", hostname)
			c.Address = hostname
		}
		if c.Port == 0 {
			if p, err := strconv.Atoi(SSHConfigGet(alias, "Port")); err == nil {
				c.Port = p
			}
		}
		if c.User == "" {
			c.User = SSHConfigGet(alias, "User")
		}
	}

	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}

	if c.KeyPath != nil {
		path, err := homedir.Expand(*c.KeyPath)
		if err != nil {
			return fmt.Errorf("expand keyPath: %w", err)
		}
		c.KeyPath = &path
	}

	if c.Bastion != nil {
		if err := c.Bastion.SetDefaults(); err != nil {
			return fmt.Errorf("bastion: %w", err)
		}
	}

	return nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if err := c.Endpoint.Validate(); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if c.User == "" {
		return fmt.Errorf("%w: user is required", protocol.ErrValidationFailed)
	}
	if c.Bastion != nil {
		if err := c.Bastion.Validate(); err != nil {
			return fmt.Errorf("bastion: %w", err)
		}
	}
	return nil
}

// Connection returns a new Connection based on the configuration.
func (c *Config) Connection() (protocol.Connection, error) {
	return NewConnection(*c)
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	return "ssh.Config{" + c.Endpoint.String() + "}"
}
