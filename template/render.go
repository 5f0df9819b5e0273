package template

import (
	"bytes"
	"strings"
	texttemplate "text/template"

	"github.com/o0-o/posix/exec"
)

// Renderer turns template text into file content.
type Renderer interface {
	Render(name, text string, data map[string]any) (string, error)
}

// TextRenderer renders with text/template. Block actions such as if, range
// and end can have the newline following them removed (TrimBlocks) and
// the indentation preceding them removed (LstripBlocks).
type TextRenderer struct {
	LeftDelim    string
	RightDelim   string
	TrimBlocks   bool
	LstripBlocks bool
	Funcs        texttemplate.FuncMap
}

// NewTextRenderer returns a TextRenderer configured from the options.
func NewTextRenderer(o *Options) *TextRenderer {
	return &TextRenderer{
		LeftDelim:    o.VariableStartString,
		RightDelim:   o.VariableEndString,
		TrimBlocks:   o.TrimBlocks == nil || *o.TrimBlocks,
		LstripBlocks: o.LstripBlocks,
	}
}

func (r *TextRenderer) delims() (string, string) {
	l, rd := r.LeftDelim, r.RightDelim
	if l == "" {
		l = "{{"
	}
	if rd == "" {
		rd = "}}"
	}
	return l, rd
}

// Render implements Renderer. Missing keys are an error.
func (r *TextRenderer) Render(name, text string, data map[string]any) (string, error) {
	l, rd := r.delims()
	tpl := texttemplate.New(name).Delims(l, rd).Option("missingkey=error")
	if r.Funcs != nil {
		tpl = tpl.Funcs(r.Funcs)
	}
	tpl, err := tpl.Parse(r.prepare(text))
	if err != nil {
		return "", exec.ErrValidation.Wrapf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", exec.ErrExecution.Wrapf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

var blockKeywords = map[string]struct{}{
	"if": {}, "else": {}, "end": {}, "range": {}, "with": {},
	"define": {}, "block": {}, "break": {}, "continue": {},
}

func isBlock(action string) bool {
	action = strings.TrimSpace(action)
	action = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(action, "-"), "-"))
	if strings.HasPrefix(action, "/*") {
		return true
	}
	word, _, _ := strings.Cut(action, " ")
	_, ok := blockKeywords[word]
	return ok
}

// prepare applies TrimBlocks and LstripBlocks to the template source.
func (r *TextRenderer) prepare(text string) string {
	if !r.TrimBlocks && !r.LstripBlocks {
		return text
	}
	l, rd := r.delims()
	var sb strings.Builder
	for {
		i := strings.Index(text, l)
		if i < 0 {
			break
		}
		j := strings.Index(text[i+len(l):], rd)
		if j < 0 {
			break
		}
		end := i + len(l) + j + len(rd)
		before := text[:i]
		block := isBlock(text[i+len(l) : i+len(l)+j])
		if block && r.LstripBlocks {
			k := strings.LastIndexByte(before, '\n')
			if strings.Trim(before[k+1:], " \t") == "" {
				before = before[:k+1]
			}
		}
		sb.WriteString(before)
		sb.WriteString(text[i:end])
		text = text[end:]
		if block && r.TrimBlocks {
			if !strings.HasPrefix(text, "\r\n") {
				text = strings.TrimPrefix(text, "\n")
			} else {
				text = text[2:]
			}
		}
	}
	sb.WriteString(text)
	return sb.String()
}
