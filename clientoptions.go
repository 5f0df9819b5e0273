package posix

import (
	"fmt"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/protocol"
)

// ClientOptions is a struct that holds the variadic options for the client.
type ClientOptions struct {
	log.LoggerInjectable
	connection           protocol.Connection
	connectionConfigurer protocol.ConnectionConfigurer
	sessionOptions       []exec.SessionOption
}

// Apply applies the supplied options to the Options struct.
func (o *ClientOptions) Apply(opts ...ClientOption) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate the options.
func (o *ClientOptions) Validate() error {
	if o.connection == nil && o.connectionConfigurer == nil {
		return fmt.Errorf("%w: no connection or connection configurer provided", protocol.ErrValidationFailed)
	}
	return nil
}

// GetConnection returns the connection to use for the client. If no
// connection is set, the ConnectionConfigurer is used to create one.
func (o *ClientOptions) GetConnection() (protocol.Connection, error) {
	var conn protocol.Connection
	if o.connection != nil {
		o.Log().Debug("using provided connection", log.HostAttr(o.connection), log.KeyComponent, "clientoptions")
		conn = o.connection
	} else {
		if o.connectionConfigurer == nil {
			return nil, fmt.Errorf("%w: no connection or connection configurer provided", protocol.ErrAbort)
		}
		o.Log().Debug("using configurer to setup a connection", log.HostAttr(o.connectionConfigurer), log.KeyComponent, "clientoptions")
		c, err := o.connectionConfigurer.Connection()
		if err != nil {
			return nil, fmt.Errorf("create connection: %w", err)
		}
		conn = c
	}

	log.InjectLogger(log.WithAttrs(o.Log(), log.HostAttr(conn), log.KeyProtocol, conn.Protocol()), conn)
	return conn, nil
}

// ClientOption is a functional option type for the Options struct.
type ClientOption func(*ClientOptions)

// WithLogger sets the logger of the client and the sessions it creates.
func WithLogger(logger log.Logger) ClientOption {
	return func(o *ClientOptions) {
		o.SetLogger(logger)
	}
}

// WithConnection sets the connection to use instead of getting one from
// the ConnectionConfigurer.
func WithConnection(conn protocol.Connection) ClientOption {
	return func(o *ClientOptions) {
		o.connection = conn
	}
}

// WithConnectionConfigurer sets the configurer used to create the
// connection.
func WithConnectionConfigurer(configurer protocol.ConnectionConfigurer) ClientOption {
	return func(o *ClientOptions) {
		o.connectionConfigurer = configurer
	}
}

// WithSessionOptions adds options applied to every session the client
// creates.
func WithSessionOptions(opts ...exec.SessionOption) ClientOption {
	return func(o *ClientOptions) {
		o.sessionOptions = append(o.sessionOptions, opts...)
	}
}

// WithHost configures the client from an inventory host.
func WithHost(h *Host) ClientOption {
	return func(o *ClientOptions) {
		o.connectionConfigurer = &h.Connection
		o.sessionOptions = append(o.sessionOptions, h.SessionOptions()...)
	}
}

// NewClientOptions creates a new Options struct with the supplied options applied.
func NewClientOptions(opts ...ClientOption) *ClientOptions {
	options := &ClientOptions{}
	options.Apply(opts...)
	return options
}
