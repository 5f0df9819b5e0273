package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/o0-o/posix"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/facts"
	"github.com/o0-o/posix/internal/args"
	"github.com/o0-o/posix/lineinfile"
	"github.com/o0-o/posix/mounts"
	"github.com/o0-o/posix/parse"
	"github.com/o0-o/posix/template"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCommandCmd(a *app) *cobra.Command {
	var (
		shell bool
		extra string
		stdin string
	)
	cmd := &cobra.Command{
		Use:   "command [flags] -- ARGV...",
		Short: "Run a command",
		Long: `Run a command on the hosts. With --shell the arguments are joined into
a single shell command line.

Additional options are given as key=value pairs with --args, for example
--args 'chdir=/srv creates=/srv/.done'.`,
		Example: `  posixctl command -- uname -a
  posixctl -i hosts.yaml command --shell -- 'ls /etc | wc -l'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			req := &exec.Request{}
			if extra != "" {
				if err := args.ParseString(extra, req); err != nil {
					return exec.ErrValidation.Wrap(err)
				}
			}
			if shell {
				req.UseShell = true
				req.Cmd = strings.Join(argv, " ")
			} else {
				req.Argv = argv
			}
			if cmd.Flags().Changed("stdin") {
				req.Stdin = &stdin
			}
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				r := *req
				return c.Command(ctx, &r, opts...)
			})
		},
	}
	cmd.Flags().BoolVarP(&shell, "shell", "s", false, "Run the arguments through the shell")
	cmd.Flags().StringVarP(&extra, "args", "a", "", "Additional key=value options")
	cmd.Flags().StringVar(&stdin, "stdin", "", "Data to feed to the command")
	return cmd
}

func newLineInFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lineinfile KEY=VALUE...",
		Short: "Ensure a line is present in or absent from a file",
		Example: `  posixctl lineinfile path=/etc/hosts line='10.0.0.1 db1' regexp='\sdb1$'
  posixctl lineinfile path=/etc/motd state=absent search_string=welcome`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, words []string) error {
			o := &lineinfile.Options{}
			if err := args.Parse(words, o); err != nil {
				return exec.ErrValidation.Wrap(err)
			}
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				hostOpts := *o
				return c.LineInFile(ctx, &hostOpts, opts...)
			})
		},
	}
}

// loadVars reads template variables from a YAML file and key=value pairs.
// The pairs override the file.
func loadVars(file string, pairs []string) (map[string]any, error) {
	vars := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read vars file: %w", err)
		}
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("decode vars file %s: %w", file, err)
		}
	}
	m, err := args.Map(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		vars[k] = v
	}
	return vars, nil
}

func newTemplateCmd(a *app) *cobra.Command {
	var (
		varsFile string
		pairs    []string
	)
	cmd := &cobra.Command{
		Use:     "template KEY=VALUE...",
		Short:   "Render a local template and install it on the hosts",
		Example: `  posixctl template src=motd.tmpl dest=/etc/motd mode=0644 -e owner=ops`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, words []string) error {
			o := &template.Options{}
			if err := args.Parse(words, o); err != nil {
				return exec.ErrValidation.Wrap(err)
			}
			vars, err := loadVars(varsFile, pairs)
			if err != nil {
				return exec.ErrValidation.Wrap(err)
			}
			o.Vars = vars
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				hostOpts := *o
				return c.Template(ctx, &hostOpts, opts...)
			})
		},
	}
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "YAML file with template variables")
	cmd.Flags().StringArrayVarP(&pairs, "extra-var", "e", nil, "Template variable as key=value, can be repeated")
	return cmd
}

func newSlurpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "slurp PATH",
		Short: "Read a file from the hosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				return c.Slurp(ctx, argv[0], opts...)
			})
		},
	}
}

func newMountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "mounts [KEY=VALUE...]",
		Short:   "List the mounted filesystems of the hosts",
		Example: `  posixctl mounts virtual=true network=false`,
		RunE: func(cmd *cobra.Command, words []string) error {
			f := &mounts.Filters{}
			if err := args.Parse(words, f); err != nil {
				return exec.ErrValidation.Wrap(err)
			}
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				hostFilters := *f
				return c.Mounts(ctx, &hostFilters, opts...)
			})
		},
	}
}

func newFactsCmd(a *app) *cobra.Command {
	var subsets []string
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Gather kernel, architecture, hostname and distribution facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := facts.Subsets(subsets); err != nil {
				return err
			}
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				return c.Facts(ctx, &facts.Options{GatherSubset: subsets}, opts...)
			})
		},
	}
	cmd.Flags().StringSliceVar(&subsets, "gather-subset", []string{"all"}, "Subsets to gather, prefix with ! to exclude")
	return cmd
}

func newComplianceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compliance",
		Short: "Evaluate POSIX and X/Open conformance with getconf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.forEachHost(cmd.Context(), func(ctx context.Context, c *posix.Client, opts []exec.SessionOption) (any, []string, error) {
				return c.Compliance(ctx, opts...)
			})
		},
	}
}

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse PARSER [FILE|-]",
		Short: "Parse command output read from a file or stdin",
		Long: `Parse the output of a command into records without contacting any host.
The available parsers are: ` + strings.Join(parse.Parsers(), ", ") + `.`,
		Example: `  df -P | posixctl parse df`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, argv []string) error {
			var r io.Reader = a.stdin
			if len(argv) == 2 && argv[1] != "-" {
				f, err := os.Open(argv[1])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			records, err := parse.Parse(argv[0], string(data))
			if err != nil {
				return err
			}
			return a.print(records)
		},
	}
}

func newHostsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List the selected inventory hosts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			hosts, err := a.loadHosts()
			if err != nil {
				return err
			}
			out := make(map[string]string, len(hosts))
			for _, h := range hosts {
				out[h.String()] = h.Connection.String()
			}
			return a.print(out)
		},
	}
}
