package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
	"github.com/o0-o/posix/log"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

const (
	logMaxAge       = 7 * 24 * time.Hour
	logRotationTime = 24 * time.Hour
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// newLogger builds the logger of a run. Console output goes to stderr. With
// a log file, every enabled level is also written there as JSON, rotated
// daily.
func newLogger(level, file string, stderr io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   !isTerminal(stderr),
	})

	if file != "" {
		writer, err := rotatelogs.New(
			file+".%Y%m%d",
			rotatelogs.WithLinkName(file),
			rotatelogs.WithMaxAge(logMaxAge),
			rotatelogs.WithRotationTime(logRotationTime),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize log file %s: %w", file, err)
		}
		writers := lfshook.WriterMap{}
		for _, l := range logrus.AllLevels {
			if logger.IsLevelEnabled(l) {
				writers[l] = writer
			}
		}
		logger.AddHook(lfshook.NewHook(writers, &logrus.JSONFormatter{}))
	}

	if lvl == logrus.TraceLevel {
		log.SetTraceLogger(log.NewLogrus(logger))
	}

	return logger, nil
}
