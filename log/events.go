package log

import (
	"context"
	"fmt"
	"log/slog"
)

// Keys used by the session events.
const (
	KeyOperation = "operation"
	KeyRaw       = "raw"
	KeyDepth     = "depth"
	KeyWarning   = "warning"
)

// OperationAttr returns an operation name attribute.
func OperationAttr(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// RawAttr tells if a step ran through the raw runner.
func RawAttr(raw bool) slog.Attr {
	return slog.Bool(KeyRaw, raw)
}

// SessionLogger decorates l with the host of an execution session.
func SessionLogger(l Logger, host fmt.Stringer) Logger {
	return WithAttrs(l, HostAttr(host))
}

// OperationEntered traces the start of an operation. depth is the number of
// operations running in ctx including op.
func OperationEntered(ctx context.Context, op string, depth int) {
	Trace(ctx, "entering operation", OperationAttr(op), KeyDepth, depth)
}

// Fallback logs that op could not run natively on host and the rest of the
// operation continues through the raw runner.
func Fallback(l Logger, host fmt.Stringer, op string) {
	l.Info("falling back to raw execution", HostAttr(host), OperationAttr(op), RawAttr(true))
}

// Warning logs a warning recorded on the session of host. The warning is
// returned to the caller as well, the log entry only mirrors it.
func Warning(l Logger, host fmt.Stringer, msg string) {
	l.Warn("operation warning", HostAttr(host), KeyWarning, msg)
}
