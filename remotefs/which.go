package remotefs

import (
	"context"
	"strings"

	"github.com/o0-o/posix/sh"
)

// Which locates binary on the remote host. It returns the path of the
// binary, the name itself for shell builtins, or an empty string when it
// can not be found.
func (f *FS) Which(ctx context.Context, binary string) (string, error) {
	res, err := f.s.Run(ctx, "sh", "-c", "command -v "+sh.Quote(binary))
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Stdout)
	if res.ReturnCode == 0 && out != "" {
		if !strings.Contains(out, "/") {
			return binary, nil
		}
		return out, nil
	}

	res, err = f.s.Run(ctx, "which", binary)
	if err != nil {
		return "", err
	}
	out = strings.ToLower(strings.TrimSpace(res.Stdout))
	if res.ReturnCode == 0 && out != "" {
		if strings.Contains(out, "shell built-in command") || strings.Contains(out, "shell builtin") || !strings.Contains(out, "/") {
			return binary, nil
		}
		return out, nil
	}

	return "", nil
}
