package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// Logrus adapts a logrus logger to the Logger interface. Key-value pairs
// become logrus fields.
type Logrus struct {
	l logrus.FieldLogger
}

// NewLogrus returns a Logger writing to l.
func NewLogrus(l logrus.FieldLogger) *Logrus {
	return &Logrus{l: l}
}

// Fields converts key-value pairs and slog attributes to logrus fields.
// A key without a value is stored under "!BADKEY" like slog does.
func Fields(keysAndValues ...any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i++ {
		switch v := keysAndValues[i].(type) {
		case slog.Attr:
			fields[v.Key] = v.Value.Any()
		case string:
			if i+1 >= len(keysAndValues) {
				fields["!BADKEY"] = v
				continue
			}
			fields[v] = keysAndValues[i+1]
			i++
		default:
			fields["!BADKEY"] = fmt.Sprint(v)
		}
	}
	return fields
}

// Debug logs a message at the debug level.
func (l *Logrus) Debug(msg string, keysAndValues ...any) {
	l.l.WithFields(Fields(keysAndValues...)).Debug(msg)
}

// Info logs a message at the info level.
func (l *Logrus) Info(msg string, keysAndValues ...any) {
	l.l.WithFields(Fields(keysAndValues...)).Info(msg)
}

// Warn logs a message at the warning level.
func (l *Logrus) Warn(msg string, keysAndValues ...any) {
	l.l.WithFields(Fields(keysAndValues...)).Warn(msg)
}

// Error logs a message at the error level.
func (l *Logrus) Error(msg string, keysAndValues ...any) {
	l.l.WithFields(Fields(keysAndValues...)).Error(msg)
}

// Log implements TraceLogger. Debug level trace messages are logged at the
// logrus trace level.
func (l *Logrus) Log(ctx context.Context, level slog.Level, msg string, keysAndValues ...any) {
	entry := l.l.WithFields(Fields(keysAndValues...)).WithContext(ctx)
	switch {
	case level >= slog.LevelError:
		entry.Error(msg)
	case level >= slog.LevelWarn:
		entry.Warn(msg)
	case level >= slog.LevelInfo:
		entry.Info(msg)
	default:
		entry.Trace(msg)
	}
}
