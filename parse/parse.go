// Package parse turns the text output of POSIX commands into records.
// Parsers are looked up by the name of the command they understand.
package parse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/o0-o/posix/errstring"
	"github.com/o0-o/posix/exec"
)

var (
	// ErrUnknownParser is returned when no parser is registered under a name.
	ErrUnknownParser = errstring.New("unknown parser")

	// ErrParse is returned when output can not be parsed.
	ErrParse = errstring.New("parse error")
)

// Func parses command output.
type Func func(output string) (any, error)

var registry = map[string]Func{
	"df":         func(s string) (any, error) { return Df(s) },
	"mount":      func(s string) (any, error) { return Mount(s) },
	"os-release": func(s string) (any, error) { return OSRelease(s) },
	"uname":      func(s string) (any, error) { return Uname(s) },
}

// Parsers returns the sorted names of the registered parsers.
func Parsers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse parses data with the named parser. Data is command output as a
// string, a slice of lines or a command result.
func Parse(name string, data any) (any, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, ErrUnknownParser.Wrapf("parser '%s' not found. Available parsers: %s", name, strings.Join(Parsers(), ", "))
	}
	return fn(Input(data))
}

// Input extracts command output from data. Terminal escape sequences are
// removed.
func Input(data any) string {
	var s string
	switch v := data.(type) {
	case string:
		s = v
	case []string:
		s = strings.Join(v, "\n")
	case *exec.Result:
		if v != nil {
			s = v.Stdout
		}
	case map[string]any:
		s, _ = v["stdout"].(string)
	}
	return stripansi.Strip(s)
}

func lines(output string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// parseError attaches the offending output to the error.
func parseError(parser, output string, format string, args ...any) error {
	return ErrParse.Wrapf("%s: %s\noutput:\n%s", parser, fmt.Sprintf(format, args...), output)
}
