package posix

import (
	"fmt"

	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/protocol/localhost"
	"github.com/o0-o/posix/protocol/ssh"
)

var _ protocol.ConnectionConfigurer = (*CompositeConfig)(nil)

// CompositeConfig is a composite configuration of the supported protocols.
// It is intended to be embedded into host structs that are unmarshaled
// from configuration files.
type CompositeConfig struct {
	SSH       *ssh.Config `yaml:"ssh,omitempty"`
	Localhost bool        `yaml:"localhost,omitempty"`
}

// intermediary structure for accepting both "localhost: true" and
// "localhost: {enabled: true}".
type compositeConfigIntermediary struct {
	SSH       *ssh.Config `yaml:"ssh,omitempty"`
	Localhost any         `yaml:"localhost,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *CompositeConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var intermediary compositeConfigIntermediary
	if err := unmarshal(&intermediary); err != nil {
		return err
	}

	c.SSH = intermediary.SSH

	switch v := intermediary.Localhost.(type) {
	case nil:
	case bool:
		c.Localhost = v
	case map[string]any:
		enabled, ok := v["enabled"].(bool)
		if !ok {
			return fmt.Errorf("unmarshal localhost - enabled must be a boolean: %w", protocol.ErrValidationFailed)
		}
		c.Localhost = enabled
	default:
		return fmt.Errorf("unmarshal localhost - invalid type %T: %w", v, protocol.ErrValidationFailed)
	}

	return nil
}

func (c *CompositeConfig) configuredConfig() (protocol.ConnectionConfigurer, error) {
	var configurer protocol.ConnectionConfigurer
	count := 0

	if c.SSH != nil {
		configurer = c.SSH
		count++
	}

	if c.Localhost {
		configurer = localhost.NewConnection()
		count++
	}

	switch count {
	case 0:
		return nil, fmt.Errorf("%w: no protocol configuration", protocol.ErrValidationFailed)
	case 1:
		return configurer, nil
	default:
		return nil, fmt.Errorf("%w: multiple protocols configured for a single host", protocol.ErrValidationFailed)
	}
}

type validatable interface {
	Validate() error
}

type defaultable interface {
	SetDefaults() error
}

// SetDefaults sets the defaults of the configured protocol.
func (c *CompositeConfig) SetDefaults() error {
	configurer, err := c.configuredConfig()
	if err != nil {
		return err
	}
	if d, ok := configurer.(defaultable); ok {
		if err := d.SetDefaults(); err != nil {
			return fmt.Errorf("set defaults %T: %w", configurer, err)
		}
	}
	return nil
}

// Validate the configuration.
func (c *CompositeConfig) Validate() error {
	configurer, err := c.configuredConfig()
	if err != nil {
		return err
	}
	if v, ok := configurer.(validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate %T: %w", configurer, err)
		}
	}
	return nil
}

// Connection returns a connection for the configured protocol.
func (c *CompositeConfig) Connection() (protocol.Connection, error) {
	cfg, err := c.configuredConfig()
	if err != nil {
		return nil, err
	}
	conn, err := cfg.Connection()
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return conn, nil
}

// String returns the string representation of the configured protocol
// config.
func (c *CompositeConfig) String() string {
	cfg, err := c.configuredConfig()
	if err != nil {
		return "[invalid config]"
	}
	return cfg.String()
}
