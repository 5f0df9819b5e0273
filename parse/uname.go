package parse

import "strings"

// UnameRecord is the output of uname -a.
type UnameRecord struct {
	KernelName       string `json:"kernel_name" yaml:"kernel_name"`
	NodeName         string `json:"node_name" yaml:"node_name"`
	KernelRelease    string `json:"kernel_release" yaml:"kernel_release"`
	KernelVersion    string `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Machine          string `json:"machine" yaml:"machine"`
	Processor        string `json:"processor,omitempty" yaml:"processor,omitempty"`
	HardwarePlatform string `json:"hardware_platform,omitempty" yaml:"hardware_platform,omitempty"`
	OperatingSystem  string `json:"operating_system,omitempty" yaml:"operating_system,omitempty"`
}

var archTokens = map[string]struct{}{
	"x86_64": {}, "amd64": {}, "i386": {}, "i486": {}, "i586": {}, "i686": {},
	"aarch64": {}, "arm64": {}, "armv6l": {}, "armv7l": {}, "armv8l": {},
	"ppc": {}, "ppc64": {}, "ppc64le": {}, "s390x": {}, "riscv64": {},
	"mips": {}, "mips64": {}, "loongarch64": {}, "sparc64": {}, "unknown": {},
}

// Uname parses the output of uname -a. On Linux the trailing machine,
// processor, hardware platform and operating system fields are picked
// from the end of the line, elsewhere the last field is the machine.
func Uname(output string) (*UnameRecord, error) {
	ls := lines(output)
	if len(ls) == 0 {
		return nil, parseError("uname", output, "no output")
	}
	f := strings.Fields(ls[0])
	if len(f) < 4 {
		return nil, parseError("uname", output, "output is incomplete, use uname -a")
	}

	rec := &UnameRecord{KernelName: f[0], NodeName: f[1], KernelRelease: f[2]}
	rest := f[3:]

	if rec.KernelName != "Linux" {
		rec.Machine = rest[len(rest)-1]
		rec.KernelVersion = strings.Join(rest[:len(rest)-1], " ")
		return rec, nil
	}

	rec.OperatingSystem = rest[len(rest)-1]
	rest = rest[:len(rest)-1]
	var arch []string
	for len(rest) > 0 && len(arch) < 3 {
		if _, ok := archTokens[rest[len(rest)-1]]; !ok {
			break
		}
		arch = append([]string{rest[len(rest)-1]}, arch...)
		rest = rest[:len(rest)-1]
	}
	if len(arch) == 0 {
		return nil, parseError("uname", output, "no machine hardware name found")
	}
	rec.Machine = arch[0]
	if len(arch) > 1 {
		rec.Processor = arch[1]
	}
	if len(arch) > 2 {
		rec.HardwarePlatform = arch[2]
	}
	rec.KernelVersion = strings.Join(rest, " ")
	return rec, nil
}
