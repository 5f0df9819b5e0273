// Package remotefs implements file probing and idempotent file mutation on
// a remote host using nothing but POSIX utilities run through an
// exec.Session.
package remotefs

import (
	"strings"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
)

// Operation tags of the entry points in this package.
const (
	OpWrite exec.Operation = "write"
	OpSlurp exec.Operation = "slurp"
)

// FS gives access to the files of the host behind a session.
type FS struct {
	log.LoggerInjectable
	s *exec.Session
}

// New returns an FS operating through the session.
func New(s *exec.Session) *FS {
	f := &FS{s: s}
	s.InjectLoggerTo(f, log.KeyComponent, "remotefs")
	return f
}

// Session returns the session of the FS.
func (f *FS) Session() *exec.Session {
	return f.s
}

// SplitLines splits text into lines the way a line reader would. Carriage
// returns are dropped and a final line terminator does not produce an
// empty last line.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
