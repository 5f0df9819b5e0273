package posix

import (
	"github.com/o0-o/posix/errstring"
)

var (
	ErrValidationFailed = errstring.New("validation failed") // ErrValidationFailed is returned when a configuration fails validation
	ErrNotConnected     = errstring.New("not connected")     // ErrNotConnected is returned when an operation is attempted before Connect
	ErrCantConnect      = errstring.New("can't connect")     // ErrCantConnect is returned when a connection can not be established
	ErrHostNotFound     = errstring.New("host not found")    // ErrHostNotFound is returned when a host is not in the inventory
)
