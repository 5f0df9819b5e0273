package parse

import (
	"strconv"
	"strings"
)

// OSReleaseRecord holds the fields of an os-release(5) file.
type OSReleaseRecord struct {
	Name       string            `json:"name" yaml:"name"`
	ID         string            `json:"id" yaml:"id"`
	IDLike     []string          `json:"id_like,omitempty" yaml:"id_like,omitempty"`
	Version    string            `json:"version,omitempty" yaml:"version,omitempty"`
	VersionID  string            `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	PrettyName string            `json:"pretty_name,omitempty" yaml:"pretty_name,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// OSRelease parses an os-release file. NAME and ID default to "Linux" and
// "linux" when unset.
func OSRelease(output string) (*OSReleaseRecord, error) {
	rec := &OSReleaseRecord{}
	for _, l := range lines(output) {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "#") {
			continue
		}
		key, value, ok := strings.Cut(l, "=")
		if !ok {
			return nil, parseError("os-release", output, "no separator in %q", l)
		}
		if v, err := strconv.Unquote(value); err == nil {
			value = v
		} else if len(value) > 1 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = value[1 : len(value)-1]
		}
		switch key {
		case "NAME":
			rec.Name = value
		case "ID":
			rec.ID = value
		case "ID_LIKE":
			rec.IDLike = strings.Fields(value)
		case "VERSION":
			rec.Version = value
		case "VERSION_ID":
			rec.VersionID = value
		case "PRETTY_NAME":
			rec.PrettyName = value
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[key] = value
		}
	}
	if rec.Name == "" {
		rec.Name = "Linux"
	}
	if rec.ID == "" {
		rec.ID = "linux"
	}
	if rec.PrettyName == "" {
		rec.PrettyName = rec.Name
	}
	return rec, nil
}
