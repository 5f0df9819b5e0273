package lineinfile

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/o0-o/posix/exec"
)

// Plan records how Present decided to edit the content. At most one of
// Insert, Replace and Keep is the origin of the final line; Keep is always
// set once planning succeeds.
type Plan struct {
	MatchIndices  []int `json:"match_indices" yaml:"match_indices"`
	LineIndices   []int `json:"line_indices" yaml:"line_indices"`
	AnchorIndices []int `json:"anchor_indices" yaml:"anchor_indices"`

	Insert  *int `json:"insert,omitempty" yaml:"insert,omitempty"`
	Replace *int `json:"replace,omitempty" yaml:"replace,omitempty"`
	Keep    *int `json:"keep,omitempty" yaml:"keep,omitempty"`

	// Deleted are the indices removed as duplicates, relative to the
	// content after insertion or replacement.
	Deleted []int `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Patcher holds compiled line edit options.
type Patcher struct {
	line        string
	re          *regexp.Regexp
	search      *string
	anchor      *regexp.Regexp
	before      bool
	bof         bool
	firstMatch  bool
	backrefs    bool
	dedupe      bool
	replacement string
}

// NewPatcher validates the options and compiles their patterns. Warnings
// about suspicious but valid options are returned separately.
func NewPatcher(o *Options) (*Patcher, []string, error) {
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	p := &Patcher{
		search:     o.SearchString,
		firstMatch: o.FirstMatch,
		backrefs:   o.Backrefs,
		dedupe:     o.dedupe(),
		bof:        o.InsertBefore == BOF,
	}
	if o.Line != nil {
		p.line = *o.Line
	}
	if o.SearchString != nil && *o.SearchString == "" {
		warnings = append(warnings, "The search_string is an empty string, which will match every line in the file. This may have unintended consequences, such as replacing the last line in the file rather than appending.")
	}
	if o.Regexp != nil {
		if *o.Regexp == "" {
			warnings = append(warnings, "The regular expression is an empty string, which will match every line in the file. This may have unintended consequences, such as replacing the last line in the file rather than appending. If this is desired, use '^' to match every line in the file and avoid this warning.")
		}
		re, err := regexp.Compile(*o.Regexp)
		if err != nil {
			return nil, nil, exec.ErrValidation.Wrapf("invalid regexp %q: %w", *o.Regexp, err)
		}
		p.re = re
	}
	if p.backrefs {
		p.replacement = goTemplate(p.line)
	}

	switch {
	case o.InsertAfter != "" && o.InsertAfter != BOF && o.InsertAfter != EOF:
		re, err := regexp.Compile(o.InsertAfter)
		if err != nil {
			return nil, nil, exec.ErrValidation.Wrapf("invalid insertafter pattern %q: %w", o.InsertAfter, err)
		}
		p.anchor = re
	case o.InsertBefore != "" && o.InsertBefore != BOF:
		re, err := regexp.Compile(o.InsertBefore)
		if err != nil {
			return nil, nil, exec.ErrValidation.Wrapf("invalid insertbefore pattern %q: %w", o.InsertBefore, err)
		}
		p.anchor = re
		p.before = true
	}

	return p, warnings, nil
}

func (p *Patcher) matches(l string) bool {
	switch {
	case p.re != nil:
		return p.re.MatchString(l)
	case p.search != nil:
		return strings.Contains(l, *p.search)
	default:
		return false
	}
}

func (p *Patcher) pick(indices []int) int {
	if p.firstMatch {
		return indices[0]
	}
	return indices[len(indices)-1]
}

func (p *Patcher) plan(lines []string) *Plan {
	plan := &Plan{}
	for i, l := range lines {
		if p.matches(l) {
			plan.MatchIndices = append(plan.MatchIndices, i)
		}
		if l == p.line {
			plan.LineIndices = append(plan.LineIndices, i)
		}
		if p.anchor != nil && p.anchor.MatchString(l) {
			plan.AnchorIndices = append(plan.AnchorIndices, i)
		}
	}

	at := func(i int) *int { return &i }

	switch {
	case len(plan.LineIndices) == 0 && len(plan.MatchIndices) == 0 && len(plan.AnchorIndices) == 0:
		if p.bof {
			plan.Insert = at(0)
		} else {
			plan.Insert = at(len(lines))
		}
	case len(plan.LineIndices) == 0 && len(plan.MatchIndices) == 0:
		a := p.pick(plan.AnchorIndices)
		if p.before {
			plan.Insert = at(a)
		} else {
			plan.Insert = at(a + 1)
		}
	case len(plan.LineIndices) == 0:
		plan.Replace = at(p.pick(plan.MatchIndices))
	case len(plan.AnchorIndices) > 0:
		a := p.pick(plan.AnchorIndices)
		if p.before {
			for _, i := range plan.LineIndices {
				if i < a {
					plan.Keep = at(i)
				}
			}
			if plan.Keep == nil {
				plan.Insert = at(a)
			}
		} else {
			for _, i := range plan.LineIndices {
				if i > a {
					plan.Keep = at(i)
					break
				}
			}
			if plan.Keep == nil {
				plan.Insert = at(a + 1)
			}
		}
	default:
		plan.Keep = at(p.pick(plan.LineIndices))
	}
	return plan
}

// Present ensures the line is in lines and returns the edited copy, the
// plan that produced it and a message describing the edit.
func (p *Patcher) Present(lines []string) ([]string, *Plan, string, error) {
	plan := p.plan(lines)
	out := slices.Clone(lines)

	var msg string
	switch {
	case plan.Insert != nil:
		out = slices.Insert(out, *plan.Insert, p.line)
		keep := *plan.Insert
		plan.Keep = &keep
		msg = "line added"
	case plan.Replace != nil:
		out[*plan.Replace] = p.replace(lines[*plan.Replace])
		keep := *plan.Replace
		plan.Keep = &keep
		msg = "line replaced"
	case plan.Keep == nil:
		return nil, plan, "", exec.ErrExecution.Wrapf("no lines found, added or replaced")
	}

	if !p.dedupe {
		return out, plan, msg, nil
	}

	seen := make(map[int]struct{})
	for _, i := range append(slices.Clone(plan.MatchIndices), plan.LineIndices...) {
		switch {
		case plan.Insert != nil && i >= *plan.Insert:
			seen[i+1] = struct{}{}
		case i != *plan.Keep:
			seen[i] = struct{}{}
		}
	}
	for i := range seen {
		plan.Deleted = append(plan.Deleted, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(plan.Deleted)))
	for _, i := range plan.Deleted {
		out = slices.Delete(out, i, i+1)
	}
	msg = strings.TrimSpace(fmt.Sprintf("%s %d lines deduped", msg, len(plan.Deleted)))

	return out, plan, msg, nil
}

// replace returns the replacement for a matched line, expanding group
// references when backrefs are enabled.
func (p *Patcher) replace(matched string) string {
	if !p.backrefs || p.re == nil {
		return p.line
	}
	m := p.re.FindStringSubmatchIndex(matched)
	if m == nil {
		return p.line
	}
	return string(p.re.ExpandString(nil, p.replacement, matched, m))
}

// Absent removes every line selected by the regexp, the search string or
// equality with the line. It returns the remaining lines, the number of
// removed lines and a message.
func (p *Patcher) Absent(lines []string) ([]string, int, string) {
	out := make([]string, 0, len(lines))
	found := 0
	for _, l := range lines {
		if p.matches(l) || (p.line != "" && l == p.line) {
			found++
			continue
		}
		out = append(out, l)
	}
	if found == 0 {
		return out, 0, "no changes made"
	}
	return out, found, fmt.Sprintf("%d line(s) removed", found)
}
