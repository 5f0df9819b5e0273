package exec

import "context"

// Kind identifies how a runner executes commands.
type Kind int

const (
	// KindNative runs commands through an interpreter on the remote host.
	KindNative Kind = iota
	// KindRaw runs commands through the POSIX shell only.
	KindRaw
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Runner executes command requests.
type Runner interface {
	Kind() Kind
	Run(ctx context.Context, req *Request) (*Result, error)
}
