package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// DfRecord is one filesystem of df(1) output. Sizes are in bytes.
type DfRecord struct {
	Filesystem string `json:"filesystem" yaml:"filesystem"`
	Total      uint64 `json:"total" yaml:"total"`
	Used       uint64 `json:"used" yaml:"used"`
	Available  uint64 `json:"available" yaml:"available"`
	UsePercent int    `json:"use_percent" yaml:"use_percent"`
	MountedOn  string `json:"mounted_on" yaml:"mounted_on"`
}

var (
	dfBlocks = regexp.MustCompile(`(?i)(\d+)-blocks`)
	dfRow    = regexp.MustCompile(`^(.*?)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\d+%|-)\s+(.+)$`)
)

// ParseSize converts a size with an optional unit suffix such as "20G",
// "512K" or "1.5TiB" to bytes. Units are binary.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	if strings.ContainsAny(s[len(s)-1:], "KMGTPEkmgtpe") {
		s += "iB"
	}
	return humanize.ParseBytes(s)
}

// Df parses the output of df -P. Block counts are converted to bytes
// using the block size named in the header. Human readable sizes as
// printed with -h are accepted as well.
func Df(output string) ([]DfRecord, error) {
	records := []DfRecord{}
	var blockSize uint64 = 1024
	human := false
	for i, l := range lines(output) {
		if i == 0 && strings.HasPrefix(l, "Filesystem") {
			if m := dfBlocks.FindStringSubmatch(l); m != nil {
				bs, err := strconv.ParseUint(m[1], 10, 64)
				if err != nil {
					return nil, parseError("df", output, "invalid block size %q", m[1])
				}
				blockSize = bs
			} else {
				human = true
			}
			continue
		}
		m := dfRow.FindStringSubmatch(strings.TrimSpace(l))
		if m == nil {
			return nil, parseError("df", output, "unrecognized line %q", l)
		}
		rec := DfRecord{Filesystem: m[1], MountedOn: m[6]}
		sizes := []*uint64{&rec.Total, &rec.Used, &rec.Available}
		for j, field := range m[2:5] {
			var (
				n   uint64
				err error
			)
			if human {
				n, err = ParseSize(field)
			} else if field != "-" {
				n, err = strconv.ParseUint(field, 10, 64)
				n *= blockSize
			}
			if err != nil {
				return nil, parseError("df", output, "invalid size %q", field)
			}
			*sizes[j] = n
		}
		if pct := strings.TrimSuffix(m[5], "%"); pct != "-" {
			rec.UsePercent, _ = strconv.Atoi(pct)
		}
		records = append(records, rec)
	}
	return records, nil
}
