package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/o0-o/posix"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// operation runs on one connected client and returns its result and
// warnings.
type operation func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error)

// hostResult is the outcome of an operation on one host.
type hostResult struct {
	Failed   bool     `json:"failed,omitempty" yaml:"failed,omitempty"`
	Msg      string   `json:"msg,omitempty" yaml:"msg,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Result   any      `json:"result,omitempty" yaml:"result,omitempty"`
}

// failer is implemented by results that can report a failure without an
// error, like a command exiting non-zero.
type failer interface {
	OK() bool
}

func (a *app) loadHosts() ([]*posix.Host, error) {
	if a.flags.inventory == "" {
		if len(a.flags.hosts) > 0 {
			return nil, fmt.Errorf("--host requires --inventory")
		}
		h := &posix.Host{Name: "localhost", Connection: posix.CompositeConfig{Localhost: true}}
		if err := h.SetDefaults(); err != nil {
			return nil, err
		}
		return []*posix.Host{h}, nil
	}

	f, err := os.Open(a.flags.inventory)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()

	inv, err := posix.LoadInventory(f)
	if err != nil {
		return nil, err
	}
	if isTerminal(os.Stdin) {
		inv.SetPasswordCallback(posix.DefaultPasswordCallback)
	}
	return inv.Select(a.flags.hosts...)
}

func (a *app) runHost(ctx context.Context, h *posix.Host, op operation) *hostResult {
	logger := log.WithAttrs(a.logger, log.KeyHost, h.String())
	c, err := posix.NewClient(posix.WithHost(h), posix.WithLogger(logger))
	if err != nil {
		return &hostResult{Failed: true, Msg: err.Error()}
	}
	if err := c.Connect(ctx); err != nil {
		return &hostResult{Failed: true, Msg: err.Error()}
	}
	defer c.Disconnect()

	res, warnings, err := op(ctx, c, a.sessionOptions())
	for _, w := range warnings {
		logger.Warn(w)
	}
	out := &hostResult{Warnings: warnings}
	if err != nil {
		logger.Error("operation failed", log.ErrorAttr(err))
		out.Failed = true
		out.Msg = err.Error()
		return out
	}
	out.Result = res
	if f, ok := res.(failer); ok && !f.OK() {
		out.Failed = true
	}
	return out
}

func (a *app) newProgressBar(n int) *progressbar.ProgressBar {
	if a.flags.noProgress || n < 2 || !isTerminal(a.stderr) {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(a.stderr),
		progressbar.OptionSetDescription("hosts"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// forEachHost runs op on the selected hosts, at most --parallel at a time,
// and prints the results keyed by host name. A failure on one host does not
// stop the others.
func (a *app) forEachHost(ctx context.Context, op operation) error {
	hosts, err := a.loadHosts()
	if err != nil {
		return err
	}

	bar := a.newProgressBar(len(hosts))
	results := make(map[string]*hostResult, len(hosts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.flags.parallel)
	for _, h := range hosts {
		h := h
		g.Go(func() error {
			res := a.runHost(gctx, h, op)
			mu.Lock()
			results[h.String()] = res
			mu.Unlock()
			if bar != nil {
				_ = bar.Add(1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := a.print(results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Failed {
			return errHostsFailed
		}
	}
	return nil
}
