// Package sh provides tools to build POSIX shell commands.
package sh

import (
	"fmt"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"
)

// CommandBuilder is a builder for shell commands.
type CommandBuilder string

// String returns the command as a string.
func (c CommandBuilder) String() string {
	return string(c)
}

// Arg adds an argument to the command. The argument is shell escaped.
func (c CommandBuilder) Arg(arg string) CommandBuilder {
	return CommandBuilder(c.String() + " " + shellescape.Quote(arg))
}

// Args adds multiple arguments to the command. The arguments are shell escaped.
func (c CommandBuilder) Args(args ...string) CommandBuilder {
	for _, arg := range args {
		c = c.Arg(arg)
	}
	return c
}

// Pipe the command to another command. The target command is shell escaped.
func (c CommandBuilder) Pipe(cmd string, args ...string) CommandBuilder {
	return CommandBuilder(c.String() + " | " + Command(cmd, args...))
}

// ErrToNull redirects the command's stderr to /dev/null.
func (c CommandBuilder) ErrToNull() CommandBuilder {
	return CommandBuilder(c.String() + " 2>/dev/null")
}

// Raw adds a raw string to the command without shell escaping.
func (c CommandBuilder) Raw(arg string) CommandBuilder {
	return CommandBuilder(c.String() + " " + arg)
}

// Command returns a CommandBuilder with the command and its arguments shell escaped.
func Command(cmd string, args ...string) string {
	return CommandBuilder(shellescape.Quote(cmd)).Args(args...).String()
}

// Quote returns a shell escaped string.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// Join shell escapes each argument and joins them with spaces.
func Join(args ...string) string {
	return shellescape.QuoteCommand(args)
}

// Split tokenizes a command line using POSIX shell word splitting rules.
func Split(s string) ([]string, error) {
	parts, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", s, err)
	}
	return parts, nil
}

// Wrap returns a command line that runs cmd through "sh -c".
func Wrap(cmd string) string {
	return Join("sh", "-c", cmd)
}

// Substitute replaces the first %s placeholder in template with the
// quoted path. A template without a placeholder is returned unchanged.
func Substitute(template, path string) string {
	return strings.Replace(template, "%s", Quote(path), 1)
}
