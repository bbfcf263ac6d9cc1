package csat

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var testPeer = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func TestAckDispatcher(t *testing.T) {
	logger := &mockLogger{}
	d := NewAckDispatcher(logger)

	reply, err := d.Dispatch(context.Background(), testPeer, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, "Confirmacion recibida: ping", string(reply))
	require.True(t, logger.has("info", "message received"))
}

func TestFileDispatcher_Stores(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDispatcher(dir, NopLogger())

	payload, err := Pack("report.txt", []byte("hello"))
	require.NoError(t, err)

	reply, err := d.Dispatch(context.Background(), testPeer, payload)
	require.NoError(t, err)
	require.False(t, IsErrorAck(reply))
	require.Contains(t, string(reply), "report.txt")

	got, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestFileDispatcher_Malformed(t *testing.T) {
	logger := &mockLogger{}
	d := NewFileDispatcher(t.TempDir(), logger)

	reply, err := d.Dispatch(context.Background(), testPeer, []byte{0x00})
	require.NoError(t, err)
	require.True(t, IsErrorAck(reply))
	require.Contains(t, string(reply), ErrMalformedEnvelope.Error())
	require.True(t, logger.has("warn", "rejecting envelope"))
}

func TestFileDispatcher_UnsafeName(t *testing.T) {
	root := t.TempDir()
	d := NewFileDispatcher(filepath.Join(root, "recv"), NopLogger())

	payload, err := Pack("../escaped.txt", []byte("x"))
	require.NoError(t, err)

	reply, err := d.Dispatch(context.Background(), testPeer, payload)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(reply), ErrorAckPrefix))

	_, err = os.Stat(filepath.Join(root, "escaped.txt"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDispatcherFunc(t *testing.T) {
	d := DispatcherFunc(func(_ context.Context, _ net.Addr, p []byte) ([]byte, error) {
		return append([]byte("got "), p...), nil
	})

	reply, err := d.Dispatch(context.Background(), testPeer, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "got x", string(reply))
}

func TestErrorAck(t *testing.T) {
	ack := ErrorAck(errors.New("disk full"))
	require.Equal(t, "error: disk full", string(ack))
	require.True(t, IsErrorAck(ack))
	require.False(t, IsErrorAck([]byte("file received: a (1 bytes)")))
}
