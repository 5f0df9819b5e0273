package posixtest_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/o0-o/posix/posixtest"
	"github.com/o0-o/posix/protocol"
	"github.com/stretchr/testify/require"
)

func TestMockConnectionHandlers(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandOutput(posixtest.HasPrefix("echo"), "generic\n")
	mc.AddCommandOutput(posixtest.Equal("echo hi"), "hi\n")

	out := &bytes.Buffer{}
	w, err := mc.StartProcess(context.Background(), "echo hi", nil, out, nil)
	require.NoError(t, err)
	require.NoError(t, w.Wait())
	require.Equal(t, "hi\n", out.String())

	out.Reset()
	w, err = mc.StartProcess(context.Background(), "echo other", nil, out, nil)
	require.NoError(t, err)
	require.NoError(t, w.Wait())
	require.Equal(t, "generic\n", out.String())

	posixtest.ReceivedEqual(t, mc, "echo hi")
	posixtest.NotReceivedEqual(t, mc, "ls")
	require.Equal(t, 2, mc.Len())
	require.Equal(t, "echo other", mc.LastCommand())
}

func TestMockConnectionFailure(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.AddCommandFailure(posixtest.Equal("false"), 1, "nope")
	errOut := &bytes.Buffer{}
	w, err := mc.StartProcess(context.Background(), "false", nil, nil, errOut)
	require.NoError(t, err)
	code, ok := protocol.ExitCode(w.Wait())
	require.True(t, ok)
	require.Equal(t, 1, code)
	require.Equal(t, "nope", errOut.String())
}

func TestMockConnectionBroken(t *testing.T) {
	mc := posixtest.NewMockConnection()
	mc.ErrConnection = errors.New("reset by peer")
	_, err := mc.StartProcess(context.Background(), "true", nil, nil, nil)
	require.ErrorIs(t, err, protocol.ErrConnectionFailed)
}
