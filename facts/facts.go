// Package facts gathers basic kernel, hardware and standards compliance
// facts from POSIX hosts.
package facts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
	"github.com/o0-o/posix/parse"
	"github.com/o0-o/posix/protocol"
)

// Op is the operation tag of Gather.
const Op exec.Operation = "facts"

// SkipReason is reported for hosts that fail the initial probe.
const SkipReason = "This does not appear to be a POSIX system."

// Fact subsets.
const (
	SubsetKernel       = "kernel"
	SubsetArch         = "arch"
	SubsetHostname     = "hostname"
	SubsetDistribution = "distribution"
)

var allSubsets = []string{SubsetKernel, SubsetArch, SubsetHostname, SubsetDistribution}

// OSReleasePath is read for the distribution subset.
const OSReleasePath = "/etc/os-release"

// Version is the version of a kernel.
type Version struct {
	ID string `json:"id" yaml:"id"`
}

// Kernel describes the running kernel.
type Kernel struct {
	Pretty  string  `json:"pretty" yaml:"pretty"`
	Name    string  `json:"name" yaml:"name"`
	Version Version `json:"version" yaml:"version"`
}

// Hostname is the name of the host as reported by uname -n.
type Hostname struct {
	Short string `json:"short" yaml:"short"`
	Long  string `json:"long" yaml:"long"`
}

// Standard is a standard the host complies with.
type Standard struct {
	Name   string `json:"name" yaml:"name"`
	Pretty string `json:"pretty" yaml:"pretty"`
}

// POSIX is the compliance entry added for every host passing the probe.
var POSIX = Standard{Name: "posix", Pretty: "POSIX"}

// OS holds the operating system facts.
type OS struct {
	Kernel       *Kernel                `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Hostname     *Hostname              `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Distribution *parse.OSReleaseRecord `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Compliance   []Standard             `json:"compliance,omitempty" yaml:"compliance,omitempty"`
}

// AddCompliance appends std unless it is already listed.
func (o *OS) AddCompliance(std Standard) {
	for _, c := range o.Compliance {
		if c == std {
			return
		}
	}
	o.Compliance = append(o.Compliance, std)
}

// CPU holds processor facts.
type CPU struct {
	Architecture string `json:"architecture" yaml:"architecture"`
}

// Hardware holds the hardware facts.
type Hardware struct {
	CPU *CPU `json:"cpu,omitempty" yaml:"cpu,omitempty"`
}

// Facts is the gathered fact tree. The top level keys are namespaced so
// they can be merged into a larger fact store.
type Facts struct {
	OS       *OS       `json:"posix_os,omitempty" yaml:"posix_os,omitempty"`
	Hardware *Hardware `json:"posix_hardware,omitempty" yaml:"posix_hardware,omitempty"`
}

// Options for Gather.
type Options struct {
	// GatherSubset lists the subsets to gather. Entries prefixed with !
	// are excluded.
	GatherSubset []string `mapstructure:"gather_subset" default:"[\"all\"]"`
}

// Result is the outcome of Gather.
type Result struct {
	Changed    bool   `json:"changed" yaml:"changed"`
	Skipped    bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	Raw        bool   `json:"raw" yaml:"raw"`
	Facts      Facts  `json:"facts" yaml:"facts"`
}

// Subsets resolves a gather_subset list into the set of subsets to
// gather. When every entry is a negation the selection starts from all.
func Subsets(list []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	negated := len(list) > 0
	for _, s := range list {
		if !strings.HasPrefix(s, "!") {
			negated = false
			break
		}
	}
	if negated {
		for _, s := range allSubsets {
			selected[s] = true
		}
	}

	valid := func(s string) bool {
		for _, a := range allSubsets {
			if a == s {
				return true
			}
		}
		return false
	}

	for _, s := range list {
		switch {
		case s == "all":
			for _, a := range allSubsets {
				selected[a] = true
			}
		case s == "!all":
			clear(selected)
		case strings.HasPrefix(s, "!") && valid(s[1:]):
			delete(selected, s[1:])
		case valid(s):
			selected[s] = true
		default:
			return nil, exec.ErrValidation.Wrapf("Invalid gather_subset: %s", s)
		}
	}
	return selected, nil
}

type probe struct {
	kernelName    string
	kernelRelease string
	machine       string
}

func firstLine(ctx context.Context, s *exec.Session, args ...string) (string, error) {
	res, err := s.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	lines := res.Lines()
	if !res.OK() || len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", exec.NewStepError(exec.ErrEnvironment, strings.Join(args, " "), res)
	}
	return strings.TrimSpace(lines[0]), nil
}

func probeUname(ctx context.Context, s *exec.Session) (*probe, error) {
	p := &probe{}
	var err error
	if p.kernelName, err = firstLine(ctx, s, "uname", "-s"); err != nil {
		return nil, err
	}
	if p.kernelRelease, err = firstLine(ctx, s, "uname", "-r"); err != nil {
		return nil, err
	}
	if p.machine, err = firstLine(ctx, s, "uname", "-m"); err != nil {
		return nil, err
	}
	return p, nil
}

// Gather collects facts from the host. A host where uname can not be run
// is reported as skipped, unless the connection itself failed.
func Gather(ctx context.Context, s *exec.Session, o *Options) (*Result, error) {
	ctx, err := exec.Enter(ctx, Op)
	if err != nil {
		return nil, err
	}
	if o == nil {
		o = &Options{}
	}
	if err := defaults.Set(o); err != nil {
		return nil, exec.ErrValidation.Wrap(err)
	}
	subsets, err := Subsets(o.GatherSubset)
	if err != nil {
		return nil, err
	}

	p, err := probeUname(ctx, s)
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionFailed) {
			return nil, err
		}
		s.Log().Debug("assuming the system is not POSIX", log.KeyHost, s.String(), log.ErrorAttr(err))
		return &Result{Skipped: true, SkipReason: SkipReason, Raw: s.IsRaw()}, nil
	}

	res := &Result{}
	osFacts := &OS{}

	if subsets[SubsetKernel] {
		osFacts.Kernel = &Kernel{
			Pretty:  p.kernelName,
			Name:    strings.ReplaceAll(strings.ToLower(p.kernelName), " ", "_"),
			Version: Version{ID: p.kernelRelease},
		}
		osFacts.AddCompliance(POSIX)
	}

	if subsets[SubsetHostname] {
		name, err := firstLine(ctx, s, "uname", "-n")
		switch {
		case errors.Is(err, protocol.ErrConnectionFailed):
			return nil, err
		case err != nil:
			s.Warn(fmt.Sprintf("failed to gather hostname: %v", err))
		default:
			short, _, _ := strings.Cut(name, ".")
			osFacts.Hostname = &Hostname{Short: short, Long: name}
		}
	}

	if subsets[SubsetDistribution] {
		dist, err := distribution(ctx, s)
		if err != nil {
			return nil, err
		}
		osFacts.Distribution = dist
	}

	if osFacts.Kernel != nil || osFacts.Hostname != nil || osFacts.Distribution != nil {
		res.Facts.OS = osFacts
	}
	if subsets[SubsetArch] {
		res.Facts.Hardware = &Hardware{CPU: &CPU{Architecture: p.machine}}
	}
	res.Raw = s.IsRaw()
	return res, nil
}

// distribution reads os-release. Hosts without one, such as the BSDs and
// macOS, report no distribution.
func distribution(ctx context.Context, s *exec.Session) (*parse.OSReleaseRecord, error) {
	res, err := s.Run(ctx, "cat", OSReleasePath)
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionFailed) {
			return nil, err
		}
		s.Warn(fmt.Sprintf("failed to read %s: %v", OSReleasePath, err))
		return nil, nil
	}
	if !res.OK() {
		log.Trace(ctx, "no os-release", log.KeyHost, s.String(), log.KeyFile, OSReleasePath)
		return nil, nil
	}
	rec, err := parse.OSRelease(parse.Input(res))
	if err != nil {
		s.Warn(fmt.Sprintf("failed to parse %s: %v", OSReleasePath, err))
		return nil, nil
	}
	return rec, nil
}
