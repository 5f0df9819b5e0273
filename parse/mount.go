package parse

import (
	"regexp"
	"strings"
)

// MountRecord is one line of mount(8) output. Type is empty on systems
// that print the type as the first option instead, such as macOS and the
// BSDs.
type MountRecord struct {
	Filesystem string   `json:"filesystem" yaml:"filesystem"`
	MountPoint string   `json:"mount_point" yaml:"mount_point"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty"`
	Options    []string `json:"options" yaml:"options"`
}

var (
	mountLinux = regexp.MustCompile(`^(.*?) on (.*?) type (\S+)(?: \((.*)\))?$`)
	mountBSD   = regexp.MustCompile(`^(.*?) on (.*?) \((.*)\)$`)
)

func splitOptions(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Mount parses the output of mount(8) in the Linux and BSD dialects.
func Mount(output string) ([]MountRecord, error) {
	records := []MountRecord{}
	for _, l := range lines(output) {
		l = strings.TrimSpace(l)
		if m := mountLinux.FindStringSubmatch(l); m != nil {
			records = append(records, MountRecord{Filesystem: m[1], MountPoint: m[2], Type: m[3], Options: splitOptions(m[4])})
			continue
		}
		if m := mountBSD.FindStringSubmatch(l); m != nil {
			records = append(records, MountRecord{Filesystem: m[1], MountPoint: m[2], Options: splitOptions(m[3])})
			continue
		}
		return nil, parseError("mount", output, "unrecognized line %q", l)
	}
	return records, nil
}
