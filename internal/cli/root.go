// Package cli implements the posixctl command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.0.0-dev"

// errHostsFailed is returned when the operation failed on at least one host.
var errHostsFailed = errors.New("operation failed on one or more hosts")

type globalFlags struct {
	inventory   string
	hosts       []string
	check       bool
	diff        bool
	forceRaw    bool
	interpreter string
	logLevel    string
	logFile     string
	output      string
	parallel    int
	noProgress  bool
}

type app struct {
	flags  globalFlags
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	runID  string
	logger log.Logger
}

func (a *app) sessionOptions() []exec.SessionOption {
	opts := []exec.SessionOption{exec.WithCheckMode(a.flags.check), exec.WithDiff(a.flags.diff)}
	if a.flags.forceRaw {
		opts = append(opts, exec.WithForceRaw(true))
	}
	if a.flags.interpreter != "" {
		opts = append(opts, exec.WithInterpreter(a.flags.interpreter))
	}
	return opts
}

func (a *app) setup(_ *cobra.Command, _ []string) error {
	switch a.flags.output {
	case outputYAML, outputJSON:
	default:
		return fmt.Errorf("invalid output format %q, must be %s or %s", a.flags.output, outputYAML, outputJSON)
	}
	if a.flags.parallel < 1 {
		return fmt.Errorf("parallel must be at least 1")
	}
	l, err := newLogger(a.flags.logLevel, a.flags.logFile, a.stderr)
	if err != nil {
		return err
	}
	a.runID = uuid.NewString()
	a.logger = log.WithAttrs(log.NewLogrus(l), "run", a.runID)
	a.logger.Debug("starting", "version", Version)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "posixctl",
		Short: "Run commands and idempotent file edits on POSIX hosts",
		Long: `posixctl runs commands and edits files on POSIX hosts over SSH or
locally. When a host has no usable python3 it falls back to plain shell
utilities and reports raw: true in the result.

Without --inventory the operations run on the local host.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.inventory, "inventory", "i", "", "Inventory file in YAML format")
	pf.StringSliceVarP(&a.flags.hosts, "host", "H", nil, "Limit to the named inventory hosts")
	pf.BoolVarP(&a.flags.check, "check", "C", false, "Report what would change without changing anything")
	pf.BoolVarP(&a.flags.diff, "diff", "D", false, "Include before and after content of changed files")
	pf.BoolVar(&a.flags.forceRaw, "force-raw", false, "Skip the interpreter and use shell utilities only")
	pf.StringVar(&a.flags.interpreter, "interpreter", "", "Remote interpreter, overrides the inventory")
	pf.StringVar(&a.flags.logLevel, "log-level", logrus.WarnLevel.String(), "Log level (trace, debug, info, warning, error)")
	pf.StringVar(&a.flags.logFile, "log-file", "", "Also write JSON logs to this file, rotated daily")
	pf.StringVarP(&a.flags.output, "output", "o", outputYAML, "Output format (yaml or json)")
	pf.IntVarP(&a.flags.parallel, "parallel", "p", 10, "Number of hosts to run on concurrently")
	pf.BoolVar(&a.flags.noProgress, "no-progress", false, "Do not show a progress bar")

	root.AddCommand(
		newCommandCmd(a),
		newLineInFileCmd(a),
		newTemplateCmd(a),
		newSlurpCmd(a),
		newMountsCmd(a),
		newFactsCmd(a),
		newComplianceCmd(a),
		newParseCmd(a),
		newHostsCmd(a),
	)
	return root
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{flags: globalFlags{}, stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(argv)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errHostsFailed) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		if errors.Is(err, exec.ErrValidation) {
			return 3
		}
		return 2
	}
	return 0
}

// Execute runs the command line and returns the exit code.
func Execute(argv []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, argv, os.Stdin, os.Stdout, os.Stderr)
}
