package posix

import (
	"context"
	"fmt"
	"sync"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/facts"
	"github.com/o0-o/posix/lineinfile"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/mounts"
	"github.com/o0-o/posix/protocol"
	"github.com/o0-o/posix/remotefs"
	"github.com/o0-o/posix/template"
)

// Client runs the operations of this module against one host.
//
// Every operation gets a fresh exec.Session, so the raw fallback decision
// and the temporary directory of one operation never leak into another.
// Operations on the same client may run concurrently.
type Client struct {
	log.LoggerInjectable

	options    *ClientOptions
	connection protocol.Connection

	mu        sync.Mutex
	connected bool
}

// NewClient returns a new client. Either WithConnection or
// WithConnectionConfigurer is required.
func NewClient(opts ...ClientOption) (*Client, error) {
	options := NewClientOptions(opts...)
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("validate client options: %w", err)
	}
	conn, err := options.GetConnection()
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	c := &Client{options: options, connection: conn}
	options.InjectLoggerTo(c, log.HostAttr(conn))
	return c, nil
}

// Connect opens the connection when the transport needs one. Calling it on
// a connected client does nothing.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if conn, ok := c.connection.(protocol.Connector); ok {
		c.Log().Debug("connecting", log.KeyProtocol, c.connection.Protocol())
		if err := conn.Connect(); err != nil {
			return ErrCantConnect.Wrapf("%s: %w", c, err)
		}
	}
	c.connected = true
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	if conn, ok := c.connection.(protocol.Disconnector); ok {
		conn.Disconnect()
	}
	c.connected = false
}

// IsConnected returns true after a successful Connect.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// String returns the name of the host.
func (c *Client) String() string {
	return c.connection.String()
}

// Protocol returns the transport name.
func (c *Client) Protocol() string {
	return c.connection.Protocol()
}

// Session returns a new session for a single operation. The client's
// session options are applied before opts.
func (c *Client) Session(opts ...exec.SessionOption) *exec.Session {
	all := make([]exec.SessionOption, 0, len(c.options.sessionOptions)+len(opts)+1)
	all = append(all, exec.WithLogger(c.Log()))
	all = append(all, c.options.sessionOptions...)
	all = append(all, opts...)
	return exec.NewSession(c.connection, all...)
}

func (c *Client) session(opts []exec.SessionOption) (*exec.Session, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected.Wrapf("%s", c)
	}
	return c.Session(opts...), nil
}

// Command runs a command with the raw fallback. The check mode of the
// session applies to the request.
func (c *Client) Command(ctx context.Context, req *exec.Request, opts ...exec.SessionOption) (*exec.Result, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)

	if err := req.SetDefaults(); err != nil {
		return nil, nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.CheckMode = s.CheckMode
	res, err := s.Command(ctx, req)
	return res, s.Warnings(), err
}

// LineInFile ensures a line is present in or absent from a file.
func (c *Client) LineInFile(ctx context.Context, o *lineinfile.Options, opts ...exec.SessionOption) (*lineinfile.Result, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	res, err := lineinfile.Run(ctx, s, o)
	return res, s.Warnings(), err
}

// Template renders a local template and installs it on the host.
func (c *Client) Template(ctx context.Context, o *template.Options, opts ...exec.SessionOption) (*template.Result, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)
	res, err := template.Run(ctx, s, o)
	return res, s.Warnings(), err
}

// Slurp reads a file from the host.
func (c *Client) Slurp(ctx context.Context, src string, opts ...exec.SessionOption) (*remotefs.SlurpResult, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)
	res, err := remotefs.New(s).Slurp(ctx, src)
	return res, s.Warnings(), err
}

// Mounts returns the filtered mount table of the host.
func (c *Client) Mounts(ctx context.Context, f *mounts.Filters, opts ...exec.SessionOption) (*mounts.Result, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)
	res, err := mounts.Gather(ctx, s, f)
	return res, s.Warnings(), err
}

// Facts gathers the requested fact subsets.
func (c *Client) Facts(ctx context.Context, o *facts.Options, opts ...exec.SessionOption) (*facts.Result, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)
	res, err := facts.Gather(ctx, s, o)
	return res, s.Warnings(), err
}

// Compliance evaluates the POSIX and X/Open conformance of the host.
func (c *Client) Compliance(ctx context.Context, opts ...exec.SessionOption) (*facts.ComplianceResult, []string, error) {
	s, err := c.session(opts)
	if err != nil {
		return nil, nil, err
	}
	defer s.Cleanup(ctx)
	res, err := facts.Compliance(ctx, s)
	return res, s.Warnings(), err
}
