package remotefs

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
)

// SlurpResult is the content of a remote file.
type SlurpResult struct {
	Source       string   `json:"source" yaml:"source"`
	Content      string   `json:"content" yaml:"content"`
	ContentLines []string `json:"content_lines" yaml:"content_lines"`
	Raw          bool     `json:"raw" yaml:"raw"`
}

type slurpReply struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Source   string `json:"source"`
}

// Slurp reads the content of a remote file. The native slurp module is
// used when the interpreter is available, cat otherwise.
func (f *FS) Slurp(ctx context.Context, src string) (*SlurpResult, error) {
	ctx, err := exec.Enter(ctx, OpSlurp)
	if err != nil {
		return nil, err
	}

	var out *SlurpResult
	if !f.s.IsRaw() {
		out, err = f.nativeSlurp(ctx, src)
		if err != nil {
			return nil, err
		}
	}
	if out == nil {
		out, err = f.Cat(ctx, src)
		if err != nil {
			return nil, err
		}
	}
	out.ContentLines = SplitLines(out.Content)
	log.Trace(ctx, "slurped file", log.KeyFile, src, log.KeyBytes, len(out.Content), log.KeyRaw, out.Raw)
	return out, nil
}

// nativeSlurp returns nil without an error when the interpreter is missing.
func (f *FS) nativeSlurp(ctx context.Context, src string) (*SlurpResult, error) {
	var reply slurpReply
	res, err := f.s.Native().Decode(ctx, "slurp", map[string]string{"src": src}, false, &reply)
	if err != nil {
		return nil, err
	}
	if f.s.FallbackIfMissing(OpSlurp, res) {
		return nil, nil
	}
	if res.Failed {
		return nil, exec.NewStepError(exec.ErrExecution, "slurp "+src, res)
	}
	data, err := base64.StdEncoding.DecodeString(reply.Content)
	if err != nil {
		return nil, exec.ErrExecution.Wrapf("failed to base64 decode slurp content: %w", err)
	}
	return &SlurpResult{Source: src, Content: string(data)}, nil
}

// Cat reads a remote file with cat(1).
func (f *FS) Cat(ctx context.Context, src string) (*SlurpResult, error) {
	strip := false
	req := exec.Argv("cat", src)
	req.StripEmptyEnds = &strip
	res, err := f.s.Command(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.ReturnCode != 0 {
		if strings.TrimSpace(res.Stderr) == "" {
			res.Stderr = res.Stdout
		}
		return nil, exec.NewStepError(exec.ErrExecution, "read "+src, res)
	}
	return &SlurpResult{
		Source:  src,
		Content: strings.ReplaceAll(res.Stdout, "\r", ""),
		Raw:     res.Raw,
	}, nil
}
