package facts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/protocol"
	"gopkg.in/yaml.v3"
)

// OpCompliance is the operation tag of Compliance.
const OpCompliance exec.Operation = "compliance"

// getconfScript prints the relevant getconf variables as YAML.
const getconfScript = `echo "POSIX1: $(getconf _POSIX_VERSION 2>/dev/null || echo undefined)"; ` +
	`echo "POSIX2: $(getconf _POSIX2_VERSION 2>/dev/null || echo undefined)"; ` +
	`echo "XOPEN_UNIX: $(getconf _XOPEN_UNIX 2>/dev/null || echo undefined)"; ` +
	`echo "XOPEN_VERSION: $(getconf _XOPEN_VERSION 2>/dev/null || echo undefined)"; ` +
	`echo "XOPEN_XCU_VERSION: $(getconf _XOPEN_XCU_VERSION 2>/dev/null || echo undefined)"`

// StandardVersion identifies a revision of a standard. Getconf holds the
// variables it was derived from, a nil value means the variable was not
// defined.
type StandardVersion struct {
	ID      string             `json:"id" yaml:"id"`
	Name    string             `json:"name" yaml:"name"`
	Getconf map[string]*string `json:"getconf,omitempty" yaml:"getconf,omitempty"`
}

// Conformance describes a standard or one of its components.
type Conformance struct {
	Name         string                  `json:"name" yaml:"name"`
	Abbreviation string                  `json:"abbreviation" yaml:"abbreviation"`
	Description  string                  `json:"description" yaml:"description"`
	Enabled      bool                    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Version      *StandardVersion        `json:"version,omitempty" yaml:"version,omitempty"`
	Components   map[string]*Conformance `json:"components,omitempty" yaml:"components,omitempty"`
	Getconf      map[string]*string      `json:"getconf,omitempty" yaml:"getconf,omitempty"`
	Note         string                  `json:"note,omitempty" yaml:"note,omitempty"`
}

// ComplianceResult is the outcome of Compliance.
type ComplianceResult struct {
	Changed    bool                    `json:"changed" yaml:"changed"`
	Msg        string                  `json:"msg" yaml:"msg"`
	Raw        bool                    `json:"raw" yaml:"raw"`
	IsPOSIX    bool                    `json:"is_posix" yaml:"is_posix"`
	Compliance map[string]*Conformance `json:"compliance" yaml:"compliance"`
}

var (
	posixVersions = map[string]StandardVersion{
		"200112": {ID: "2001", Name: "POSIX.1-2001"},
		"200809": {ID: "2008", Name: "POSIX.1-2008"},
		"202405": {ID: "2024", Name: "POSIX.1-2024"},
	}
	xopenVersions = map[string]StandardVersion{
		"600": {ID: "3", Name: "SUSv3"},
		"700": {ID: "4", Name: "SUSv4"},
		"800": {ID: "5", Name: "SUSv5"},
	}
)

func newSUS() *Conformance {
	return &Conformance{
		Name:         "Single UNIX Specification",
		Abbreviation: "SUS",
		Description:  "Unified UNIX standard combining POSIX with XSI extensions",
	}
}

func newPOSIX() *Conformance {
	return &Conformance{
		Name:         "Portable Operating System Interface",
		Abbreviation: "POSIX",
		Description:  "IEEE standard for compatibility between operating systems",
		Components:   map[string]*Conformance{},
	}
}

func newXSH() *Conformance {
	return &Conformance{Name: "System Interfaces", Abbreviation: "XSH", Description: "POSIX System Interfaces and Headers"}
}

func newXCU() *Conformance {
	return &Conformance{Name: "Shell & Utilities", Abbreviation: "XCU", Description: "POSIX Shell and Utilities"}
}

func newXSI(support string) *Conformance {
	return &Conformance{
		Name:         "X/Open System Interface",
		Abbreviation: "XSI",
		Description:  "Extensions to POSIX for UNIX systems",
		Enabled:      true,
		Getconf:      map[string]*string{"_XOPEN_UNIX": &support},
	}
}

func knownVersions(m map[string]StandardVersion) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func undefined(v string) bool {
	return v == "undefined" || v == "" || v == "-1"
}

func versionOf(m map[string]StandardVersion, key string) *StandardVersion {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

// getconfValues decodes the output of getconfScript. Values are kept as
// their textual form.
func getconfValues(stdout string) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, exec.ErrExecution.Wrapf("failed to parse getconf output as YAML: %w\noutput: %s", err, stdout)
	}
	if raw == nil {
		return nil, exec.ErrExecution.Wrapf("getconf output did not parse as a dictionary: %s", stdout)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			values[k] = ""
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}

func value(values map[string]string, key string) string {
	v, ok := values[key]
	if !ok {
		return "undefined"
	}
	return v
}

// Evaluate derives the standards compliance from getconf values. Warnings
// about unrecognized versions are passed to warn.
func Evaluate(values map[string]string, warn func(string)) *ComplianceResult {
	res := &ComplianceResult{Compliance: map[string]*Conformance{}}
	comp := res.Compliance

	posix := func() *Conformance {
		if comp["posix"] == nil {
			comp["posix"] = newPOSIX()
		}
		return comp["posix"]
	}

	posix1 := value(values, "POSIX1")
	if v := versionOf(posixVersions, posix1); v != nil {
		xsh := newXSH()
		v.Getconf = map[string]*string{"_POSIX_VERSION": &posix1}
		xsh.Version = v
		posix().Components["xsh"] = xsh
		res.IsPOSIX = true
	} else if !undefined(posix1) {
		warn(fmt.Sprintf("Unrecognized POSIX.1 version: %s. Known versions: %s", posix1, knownVersions(posixVersions)))
	}

	posix2 := value(values, "POSIX2")
	xcuVersion := value(values, "XOPEN_XCU_VERSION")
	assumed := false
	if undefined(posix2) && !undefined(xcuVersion) {
		_, isPOSIX := posixVersions[xcuVersion]
		_, isXOpen := xopenVersions[xcuVersion]
		if _, ok := posixVersions[posix1]; ok && !isPOSIX && !isXOpen {
			posix2 = posix1
			assumed = true
		}
	}

	if v := versionOf(posixVersions, posix2); v != nil {
		xcu := newXCU()
		if assumed {
			xcuCopy := xcuVersion
			v.Getconf = map[string]*string{"_POSIX2_VERSION": nil, "_XOPEN_XCU_VERSION": &xcuCopy}
			xcu.Note = fmt.Sprintf(
				"Assuming _POSIX_VERSION (%s) applies because _XOPEN_XCU_VERSION is defined (%s) but appears to be invalid",
				posix1, xcuVersion)
		} else {
			p2 := posix2
			v.Getconf = map[string]*string{"_POSIX2_VERSION": &p2, "_XOPEN_XCU_VERSION": nil}
			if !undefined(xcuVersion) {
				xcuCopy := xcuVersion
				v.Getconf["_XOPEN_XCU_VERSION"] = &xcuCopy
			}
		}
		xcu.Version = v
		posix().Components["xcu"] = xcu
		res.IsPOSIX = true
	} else if !undefined(posix2) {
		warn(fmt.Sprintf("Unrecognized POSIX.2 version: %s. Known versions: %s", posix2, knownVersions(posixVersions)))
	}

	xopenUnix := value(values, "XOPEN_UNIX")
	xopenVersion := value(values, "XOPEN_VERSION")
	if !undefined(xopenUnix) && xopenUnix != "0" && comp["posix"] != nil {
		if n, err := strconv.Atoi(xopenUnix); err == nil && n > 0 {
			posix().Components["xsi"] = newXSI(xopenUnix)
		}
	}
	if v := versionOf(xopenVersions, xopenVersion); v != nil {
		sus := newSUS()
		xv := xopenVersion
		xu := xopenUnix
		v.Getconf = map[string]*string{"_XOPEN_VERSION": &xv}
		sus.Version = v
		sus.Getconf = map[string]*string{"_XOPEN_UNIX": &xu}
		comp["sus"] = sus
		res.IsPOSIX = true
	} else if !undefined(xopenVersion) {
		warn(fmt.Sprintf("Unrecognized X/Open version: %s. Known versions: %s", xopenVersion, knownVersions(xopenVersions)))
	}

	res.Msg = message(res)
	return res
}

func message(res *ComplianceResult) string {
	if !res.IsPOSIX {
		return "The system is not POSIX compliant"
	}
	if sus := res.Compliance["sus"]; sus != nil {
		return "System is compliant with " + sus.Version.Name
	}
	if posix := res.Compliance["posix"]; posix != nil {
		var components []string
		for _, key := range []string{"xsh", "xcu", "xsi"} {
			if posix.Components[key] != nil {
				components = append(components, strings.ToUpper(key))
			}
		}
		if len(components) > 0 {
			return fmt.Sprintf("System is POSIX-compliant (%s)", strings.Join(components, ", "))
		}
	}
	return "System is POSIX-compliant"
}

// Compliance queries getconf on the host and reports which revisions of
// POSIX and the Single UNIX Specification it claims to conform to.
func Compliance(ctx context.Context, s *exec.Session) (*ComplianceResult, error) {
	ctx, err := exec.Enter(ctx, OpCompliance)
	if err != nil {
		return nil, err
	}

	out, err := s.RunShell(ctx, getconfScript)
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionFailed) {
			return nil, err
		}
		return nil, exec.ErrExecution.Wrapf("failed to execute getconf commands: %w", err)
	}
	if !out.OK() {
		return nil, exec.ErrExecution.Wrapf("failed to execute getconf commands: %s", strings.TrimSpace(out.Stderr))
	}

	values, err := getconfValues(out.Stdout)
	if err != nil {
		return nil, err
	}
	res := Evaluate(values, s.Warn)
	res.Raw = s.IsRaw()
	return res, nil
}
