// Package log provides the logging interface used throughout posix.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// Null is a logger that discards everything.
	Null = slog.New(Discard)

	traceMu sync.RWMutex
	trace   TraceLogger = Null
)

// Common attribute keys.
const (
	KeyHost      = "host"
	KeyExitCode  = "exitCode"
	KeyError     = "error"
	KeyBytes     = "bytes"
	KeyDuration  = "duration"
	KeyCommand   = "command"
	KeyFile      = "file"
	KeyProtocol  = "protocol"
	KeyComponent = "component"
)

// HostAttr returns a host attribute for the given connection.
func HostAttr(conn fmt.Stringer) slog.Attr {
	return slog.String(KeyHost, conn.String())
}

// ErrorAttr returns an error attribute. A nil error gives an empty value.
func ErrorAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: KeyError, Value: slog.StringValue("")}
	}
	return slog.Attr{Key: KeyError, Value: slog.StringValue(err.Error())}
}

// FileAttr returns a file path attribute.
func FileAttr(file string) slog.Attr {
	return slog.String(KeyFile, file)
}

// SetTraceLogger enables trace logging through the given logger.
func SetTraceLogger(l TraceLogger) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if l == nil {
		trace = Null
		return
	}
	trace = l
}

// Trace is for internal trace logging that must be separately enabled by
// providing a [TraceLogger], which is implemented by slog.Logger.
func Trace(ctx context.Context, msg string, keysAndValues ...any) {
	traceMu.RLock()
	l := trace
	traceMu.RUnlock()
	l.Log(ctx, slog.LevelDebug, msg, keysAndValues...)
}

// TraceLogger is implemented by slog.Logger.
type TraceLogger interface {
	Log(ctx context.Context, level slog.Level, msg string, keysAndValues ...any)
}

// Logger interface is implemented by slog.Logger and can be easily adapted
// for any other logging system. The functions are not printf-style, the
// arguments are key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type withAttrs struct {
	logger Logger
	attrs  []any
}

func (w *withAttrs) kv(kv []any) []any {
	out := make([]any, 0, len(w.attrs)+len(kv))
	out = append(out, w.attrs...)
	return append(out, kv...)
}

func (w *withAttrs) Debug(msg string, keysAndValues ...any) {
	w.logger.Debug(msg, w.kv(keysAndValues)...)
}

func (w *withAttrs) Info(msg string, keysAndValues ...any) {
	w.logger.Info(msg, w.kv(keysAndValues)...)
}

func (w *withAttrs) Warn(msg string, keysAndValues ...any) {
	w.logger.Warn(msg, w.kv(keysAndValues)...)
}

func (w *withAttrs) Error(msg string, keysAndValues ...any) {
	w.logger.Error(msg, w.kv(keysAndValues)...)
}

// WithAttrs returns a logger that prepends the given key-value pairs to
// every entry. A slog.Logger keeps its own handler attributes and nested
// wrappers are flattened so the session, runner and component attributes
// end up in a single list.
func WithAttrs(logger Logger, attrs ...any) Logger {
	if len(attrs) == 0 {
		return logger
	}
	switch l := logger.(type) {
	case *slog.Logger:
		return l.With(attrs...)
	case *withAttrs:
		return &withAttrs{logger: l.logger, attrs: l.kv(attrs)}
	}
	return &withAttrs{logger: logger, attrs: attrs}
}

// LoggerInjectable can be embedded in other structs to provide a logger and a log setter.
type LoggerInjectable struct {
	logger Logger
}

type injectable interface {
	SetLogger(logger Logger)
	Log() Logger
}

// InjectLogger sets the logger for the given object if it can receive one.
func InjectLogger(l Logger, obj any, attrs ...any) {
	if o, ok := obj.(injectable); ok {
		if len(attrs) > 0 {
			o.SetLogger(WithAttrs(l, attrs...))
		} else {
			o.SetLogger(l)
		}
	}
}

// InjectLoggerTo passes the embedding object's logger on to obj.
func (li *LoggerInjectable) InjectLoggerTo(obj any, attrs ...any) {
	if li.HasLogger() {
		InjectLogger(li.logger, obj, attrs...)
	}
}

// SetLogger sets the logger for the embedding object.
func (li *LoggerInjectable) SetLogger(logger Logger) {
	li.logger = logger
}

// HasLogger returns true if a logger has been set.
func (li *LoggerInjectable) HasLogger() bool {
	return li.logger != nil && li.logger != Logger(Null)
}

// Log returns the logger for the embedding object.
func (li *LoggerInjectable) Log() Logger {
	if li.logger == nil {
		return Null
	}
	return li.logger
}
