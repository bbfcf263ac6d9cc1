package csat

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Client is an interactive TCP session: one connection, one reply per request.
// A Client is not safe for concurrent use.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	opts   clientOptions
	policy sessionPolicy
	closed atomic.Bool
}

// Dial connects to a TCP server.
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	o := newClientOptions(opts)

	d := net.Dialer{Timeout: o.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		o.logger.Error("connect failed", "network", "tcp", "addr", addr, "error", err)
		return nil, errors.Wrapf(err, "connect %s", addr)
	}
	o.logger.Info("connected", "network", "tcp", "addr", conn.RemoteAddr())

	return &Client{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, readChunkSize),
		opts:   o,
		policy: sessionPolicy{min: o.minMessages},
	}, nil
}

// Send writes payload as one frame and reads exactly one reply frame.
//
// An oversized payload is rejected before anything is written and leaves the
// session usable. Any failure on the stream itself closes the client; dial
// again to continue.
func (c *Client) Send(payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	frame, err := Frame(payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	n, err := c.conn.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		c.fail(err)
		return nil, errors.Wrap(err, "send frame")
	}
	c.policy.record()
	logSent(c.opts.logger, "tcp", c.conn.RemoteAddr(), len(payload), start)

	reply, err := ReadFrameLimit(c.reader, c.opts.maxFrame)
	if err != nil {
		c.fail(err)
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrConnectionClosed, "server closed the connection")
		}
		return nil, err
	}
	logReply(c.opts.logger, "tcp", len(reply), start)

	return reply, nil
}

// SendMessage sends a text message and returns the server's reply.
func (c *Client) SendMessage(msg string) (string, error) {
	reply, err := c.Send([]byte(msg))
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// SendFile sends the file at path as an envelope and returns the server's
// acknowledgment. If the server answers with an error acknowledgment the
// acknowledgment is returned together with an error matching ErrRejected.
func (c *Client) SendFile(path string) (string, error) {
	return sendFile(c.opts.logger, c.Send, path)
}

// End closes the session if enough messages were sent; otherwise it returns
// an error matching ErrTooFewMessages and the session stays open.
func (c *Client) End() error {
	if err := c.policy.checkEnd(); err != nil {
		c.opts.logger.Warn("session cannot end yet", "error", err)
		return err
	}
	return c.Close()
}

// Sent returns the number of messages written so far.
func (c *Client) Sent() int {
	return c.policy.sent
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.opts.logger.Info("connection closed", "network", "tcp", "addr", c.conn.RemoteAddr())
	return c.conn.Close()
}

func (c *Client) fail(err error) {
	c.opts.logger.Warn("connection broken", "network", "tcp", "addr", c.conn.RemoteAddr(), "error", err)
	_ = c.Close()
}

// sendFile packs the file at path and sends it with send.
func sendFile(logger Logger, send func([]byte) ([]byte, error), path string) (string, error) {
	name, payload, err := LoadEnvelope(path)
	if err != nil {
		logger.Warn("file not sent", "path", path, "error", err)
		return "", err
	}

	reply, err := send(payload)
	if err != nil {
		return "", err
	}

	ack := string(reply)
	if IsErrorAck(reply) {
		return ack, errors.Wrapf(ErrRejected, "%s: %s", name, ack)
	}
	return ack, nil
}
