package csat

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"
)

// Acknowledgment prefixes used by the built-in dispatchers.
const (
	// AckPrefix starts every reply of the message-mode dispatcher.
	AckPrefix = "Confirmacion recibida: "
	// ErrorAckPrefix starts every reply reporting a failed request.
	ErrorAckPrefix = "error: "
)

// timestampLayout is the receipt/send time format used in logs.
const timestampLayout = "15:04:05.000"

// Dispatcher produces the reply for one received payload.
//
// It is called synchronously between reading a request and reading the next
// one, so a connection never has more than one request in flight. A returned
// error is handed to the connection's error callback; request-level failures
// that should keep the session alive belong in an error acknowledgment instead.
type Dispatcher interface {
	Dispatch(ctx context.Context, peer net.Addr, payload []byte) ([]byte, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, peer net.Addr, payload []byte) ([]byte, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, peer net.Addr, payload []byte) ([]byte, error) {
	return f(ctx, peer, payload)
}

// ErrorAck returns the acknowledgment reporting err to the peer.
func ErrorAck(err error) []byte {
	return []byte(ErrorAckPrefix + err.Error())
}

// IsErrorAck reports whether reply is an error acknowledgment.
func IsErrorAck(reply []byte) bool {
	return bytes.HasPrefix(reply, []byte(ErrorAckPrefix))
}

// AckDispatcher confirms every message by echoing it after AckPrefix.
type AckDispatcher struct {
	logger Logger
}

// NewAckDispatcher returns a message-mode dispatcher logging to logger.
func NewAckDispatcher(logger Logger) *AckDispatcher {
	if logger == nil {
		logger = defaultLogger()
	}
	return &AckDispatcher{logger: logger}
}

// Dispatch logs the message and returns its confirmation.
func (d *AckDispatcher) Dispatch(_ context.Context, peer net.Addr, payload []byte) ([]byte, error) {
	d.logger.Info("message received",
		"peer", peer,
		"message", string(payload),
		"received_at", time.Now().Format(timestampLayout))

	reply := make([]byte, 0, len(AckPrefix)+len(payload))
	reply = append(reply, AckPrefix...)
	return append(reply, payload...), nil
}

// FileDispatcher stores every received file envelope under a directory.
type FileDispatcher struct {
	dir    string
	logger Logger
}

// NewFileDispatcher returns a file-mode dispatcher writing into dir.
func NewFileDispatcher(dir string, logger Logger) *FileDispatcher {
	if logger == nil {
		logger = defaultLogger()
	}
	return &FileDispatcher{dir: dir, logger: logger}
}

// Dir returns the receive directory.
func (d *FileDispatcher) Dir() string {
	return d.dir
}

// Dispatch unpacks and stores the file. Malformed envelopes and storage
// failures are answered with an error acknowledgment.
func (d *FileDispatcher) Dispatch(_ context.Context, peer net.Addr, payload []byte) ([]byte, error) {
	name, content, err := Unpack(payload)
	if err != nil {
		d.logger.Warn("rejecting envelope", "peer", peer, "bytes", len(payload), "error", err)
		return ErrorAck(err), nil
	}

	path, err := Store(name, content, d.dir)
	if err != nil {
		d.logger.Warn("storing file failed", "peer", peer, "name", name, "error", err)
		return ErrorAck(err), nil
	}

	d.logger.Info("file stored",
		"peer", peer,
		"path", path,
		"bytes", len(content),
		"received_at", time.Now().Format(timestampLayout))
	return []byte(fmt.Sprintf("file received: %s (%d bytes)", name, len(content))), nil
}
