package remotefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/o0-o/posix/exec"
	"github.com/o0-o/posix/log"
)

// Perms is a set of ownership, mode and SELinux context fields. As a
// desired state only the set fields are enforced, an empty field means
// "don't care". As an observed state Mode, Owner and Group are always
// set and the SELinux fields only when they were requested.
type Perms struct {
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty" mapstructure:"owner"`
	Group string `json:"group,omitempty" yaml:"group,omitempty" mapstructure:"group"`
	// Mode is an octal string such as "0644" when desired and a symbolic
	// string such as "rw-r--r--" when observed.
	Mode    string `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode"`
	SEUser  string `json:"seuser,omitempty" yaml:"seuser,omitempty" mapstructure:"seuser"`
	SERole  string `json:"serole,omitempty" yaml:"serole,omitempty" mapstructure:"serole"`
	SEType  string `json:"setype,omitempty" yaml:"setype,omitempty" mapstructure:"setype"`
	SELevel string `json:"selevel,omitempty" yaml:"selevel,omitempty" mapstructure:"selevel"`
}

type permField struct {
	name string
	get  func(*Perms) string
}

// the fields compared verbatim, mode is compared separately
var permFields = []permField{
	{"owner", func(p *Perms) string { return p.Owner }},
	{"group", func(p *Perms) string { return p.Group }},
	{"selevel", func(p *Perms) string { return p.SELevel }},
	{"serole", func(p *Perms) string { return p.SERole }},
	{"setype", func(p *Perms) string { return p.SEType }},
	{"seuser", func(p *Perms) string { return p.SEUser }},
}

// SELinux returns true if any SELinux context field is set.
func (p *Perms) SELinux() bool {
	return p != nil && (p.SEUser != "" || p.SERole != "" || p.SEType != "" || p.SELevel != "")
}

// IsZero returns true when no field is set.
func (p *Perms) IsZero() bool {
	return p == nil || (*p == Perms{})
}

// Validate checks the mode is a valid octal mode.
func (p *Perms) Validate() error {
	if p == nil || p.Mode == "" {
		return nil
	}
	if _, err := SymbolicMode(p.Mode); err != nil {
		return err
	}
	return nil
}

// Diff returns the first field of p that is set and differs from observed
// as "key" and the wanted and observed values. Mode is compared in its
// symbolic form.
func (p *Perms) Diff(observed *Perms) (key, want, got string, err error) { //nolint:nonamedreturns // clarity
	if p == nil {
		return "", "", "", nil
	}
	for _, pf := range permFields {
		w := pf.get(p)
		if w != "" && w != pf.get(observed) {
			return pf.name, w, pf.get(observed), nil
		}
	}
	if p.Mode != "" {
		sym, err := SymbolicMode(p.Mode)
		if err != nil {
			return "", "", "", err
		}
		if sym != observed.Mode {
			return "mode", sym, observed.Mode, nil
		}
	}
	return "", "", "", nil
}

// SymbolicMode converts an octal mode such as "0644" or "4755" into the
// nine character symbolic form used by ls, such as "rw-r--r--" or
// "rwsr-xr-x".
func SymbolicMode(octal string) (string, error) {
	bits, err := strconv.ParseUint(octal, 8, 32)
	if err != nil || octal == "" || bits > 0o7777 {
		return "", exec.ErrValidation.Wrapf("invalid mode: %q", octal)
	}

	const rwx = "rwxrwxrwx"
	out := []byte("---------")
	for i := 0; i < 9; i++ {
		if bits&(1<<uint(8-i)) != 0 {
			out[i] = rwx[i]
		}
	}
	special := []struct {
		bit   uint64
		pos   int
		lower byte
	}{
		{0o4000, 2, 's'},
		{0o2000, 5, 's'},
		{0o1000, 8, 't'},
	}
	for _, sp := range special {
		if bits&sp.bit == 0 {
			continue
		}
		if out[sp.pos] == 'x' {
			out[sp.pos] = sp.lower
		} else {
			out[sp.pos] = sp.lower - 'a' + 'A'
		}
	}
	return string(out), nil
}

// listingMode strips the leading file type character and any trailing
// ACL or attribute indicator from a long listing mode field.
func listingMode(field string) (string, bool) {
	if len(field) < 10 {
		return "", false
	}
	return field[1:10], true
}

func looksLikeMode(field string) bool {
	if len(field) < 10 {
		return false
	}
	return strings.ContainsRune("-dlbcps", rune(field[0]))
}

// ParseListing parses the first line of ls -ld output, or ls -ldZ output
// when selinux is true. Both the layout where the context is the first
// field and the GNU layout where it follows the group are understood.
func ParseListing(line string, selinux bool) (*Perms, error) {
	parts := strings.Fields(line)
	if !selinux {
		if len(parts) < 4 {
			return nil, exec.ErrEnvironment.Wrapf("unexpected output from ls -ld: %s", line)
		}
		mode, ok := listingMode(parts[0])
		if !ok {
			return nil, exec.ErrEnvironment.Wrapf("unexpected output from ls -ld: %s", line)
		}
		return &Perms{Mode: mode, Owner: parts[2], Group: parts[3]}, nil
	}

	malformed := exec.ErrEnvironment.Wrapf("unexpected SELinux output from ls -Zd: %s", line)
	var label, modeField, owner, group string
	switch {
	case len(parts) >= 4 && strings.Contains(parts[0], ":") && looksLikeMode(parts[1]):
		label, modeField, owner, group = parts[0], parts[1], parts[2], parts[3]
	case len(parts) >= 5 && looksLikeMode(parts[0]):
		modeField, owner, group, label = parts[0], parts[2], parts[3], parts[4]
	default:
		return nil, malformed
	}
	mode, ok := listingMode(modeField)
	if !ok {
		return nil, malformed
	}
	ctxParts := strings.SplitN(label, ":", 4)
	if len(ctxParts) != 4 {
		return nil, malformed
	}
	return &Perms{
		Mode:    mode,
		Owner:   owner,
		Group:   group,
		SEUser:  ctxParts[0],
		SERole:  ctxParts[1],
		SEType:  ctxParts[2],
		SELevel: ctxParts[3],
	}, nil
}

// Perms returns the observed permissions of path. SELinux context fields
// are only read when selinux is true.
func (f *FS) Perms(ctx context.Context, path string, selinux bool) (*Perms, error) {
	flags := "-ld"
	if selinux {
		flags = "-ldZ"
	}
	res, err := f.s.Run(ctx, "ls", flags, path)
	if err != nil {
		return nil, err
	}
	if res.ReturnCode != 0 {
		return nil, exec.NewStepError(exec.ErrEnvironment, fmt.Sprintf("stat %s", path), res)
	}
	lines := res.Lines()
	if len(lines) == 0 {
		return nil, exec.ErrEnvironment.Wrapf("could not stat %s: empty output from ls", path)
	}
	perms, err := ParseListing(lines[0], selinux)
	if err != nil {
		return nil, err
	}
	f.Log().Debug("permissions", log.FileAttr(path), "mode", perms.Mode, "owner", perms.Owner, "group", perms.Group)
	return perms, nil
}
