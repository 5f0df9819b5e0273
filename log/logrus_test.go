package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/o0-o/posix/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	fields := log.Fields(slog.String(log.KeyHost, "web1"), log.KeyExitCode, 2, "dangling")
	require.Equal(t, logrus.Fields{log.KeyHost: "web1", log.KeyExitCode: 2, "!BADKEY": "dangling"}, fields)
}

func TestLogrusAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.TraceLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	var logger log.Logger = log.NewLogrus(l)
	logger.Warn("falling back", log.KeyHost, "web1")
	require.Contains(t, buf.String(), `level=warning msg="falling back" host=web1`)

	buf.Reset()
	log.NewLogrus(l).Log(context.Background(), slog.LevelDebug, "probe", log.KeyCommand, "uname -s")
	require.Contains(t, buf.String(), "level=trace")
	require.Contains(t, buf.String(), `command="uname -s"`)
}

func TestWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	logger := log.WithAttrs(log.NewLogrus(l), log.KeyComponent, "remotefs")
	logger.Info("wrote file", log.FileAttr("/etc/motd"))
	require.Contains(t, buf.String(), "component=remotefs")
	require.Contains(t, buf.String(), "file=/etc/motd")
}

func TestWithAttrsFlattens(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	logger := log.WithAttrs(log.SessionLogger(log.NewLogrus(l), stringer("web1")), log.KeyComponent, "template")
	logger.Info("rendered")
	require.Contains(t, buf.String(), "component=template host=web1")

	require.Equal(t, logger, log.WithAttrs(logger))
}

func TestSessionEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Fallback(logger, stringer("router"), "template")
	require.Contains(t, buf.String(), `msg="falling back to raw execution" host=router operation=template raw=true`)

	buf.Reset()
	log.Warning(logger, stringer("router"), "SELinux tools not found")
	require.Contains(t, buf.String(), `level=WARN msg="operation warning" host=router warning="SELinux tools not found"`)

	buf.Reset()
	log.SetTraceLogger(logger)
	t.Cleanup(func() { log.SetTraceLogger(nil) })
	log.OperationEntered(context.Background(), "lineinfile", 2)
	require.Contains(t, buf.String(), "operation=lineinfile depth=2")
}

type stringer string

func (s stringer) String() string { return string(s) }
