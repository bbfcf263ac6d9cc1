package csat

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxDatagramSize is the largest datagram the UDP server accepts.
	// Larger ones are rejected with an error acknowledgment.
	DefaultMaxDatagramSize = 1024
	// MaxUDPPayload is the largest payload a single IPv4 UDP datagram can carry.
	MaxUDPPayload = 65507

	defaultPollInterval = time.Second
)

// UDPServer answers every datagram with one reply datagram sent to the
// exact source address. Datagrams are handled one at a time, so replies
// leave in the order requests arrived. No state is kept between datagrams.
type UDPServer struct {
	conn       *net.UDPConn
	dispatcher Dispatcher
	opts       serverOptions

	running atomic.Bool
	closed  atomic.Bool
}

// ListenUDP binds a UDP server to addr. Like New, it probes the address
// first and returns an error matching ErrPortInUse if it is taken.
func ListenUDP(addr *net.UDPAddr, d Dispatcher, opts ...ServerOption) (*UDPServer, error) {
	if d == nil {
		return nil, ErrInvalidDispatcher
	}
	if err := probeUDP(addr); err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &UDPServer{
		conn:       conn,
		dispatcher: d,
		opts:       newServerOptions(opts),
	}
	s.running.Store(true)

	return s, nil
}

func probeUDP(addr *net.UDPAddr) error {
	if addr.Port == 0 {
		return nil
	}
	c, err := net.ListenUDP(addr.Network(), addr)
	if err != nil {
		return errors.Wrapf(ErrPortInUse, "udp %s: %v", addr, err)
	}
	return c.Close()
}

// Serve receives and answers datagrams until ctx is canceled or Close is
// called. Receives wake up every poll interval to notice either; the
// interval is not a protocol timeout.
func (s *UDPServer) Serve(ctx context.Context) error {
	logger := s.opts.logger
	logger.Info("server started", "network", "udp", "addr", s.conn.LocalAddr())

	// One spare byte reveals datagrams the kernel had to truncate.
	buf := make([]byte, s.opts.maxDatagram+1)
	for s.running.Load() && ctx.Err() == nil {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.pollInterval))

		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !s.running.Load() {
				break
			}
			logger.Error("receive error", "network", "udp", "error", err)
			continue
		}

		if n > s.opts.maxDatagram {
			s.reject(peer, errors.Wrapf(ErrFrameTooLarge, "datagram exceeds %d bytes", s.opts.maxDatagram))
			continue
		}
		s.handle(ctx, peer, bytes.Clone(buf[:n]))
	}

	logger.Info("server stopped", "network", "udp", "addr", s.conn.LocalAddr())
	s.running.Store(false)
	_ = s.closeConn()
	return ctx.Err()
}

func (s *UDPServer) handle(ctx context.Context, peer *net.UDPAddr, payload []byte) {
	logger := s.opts.logger
	logger.Info("datagram received",
		"peer_ip", peer.IP,
		"peer_port", peer.Port,
		"bytes", len(payload),
		"received_at", time.Now().Format(timestampLayout))

	reply, err := s.dispatcher.Dispatch(ctx, peer, payload)
	if err != nil {
		logger.Warn("dispatch error", "peer", peer, "error", err)
		reply = ErrorAck(err)
	}

	if _, err := s.conn.WriteToUDP(reply, peer); err != nil {
		logger.Warn("reply failed", "peer", peer, "error", err)
		return
	}
	logger.Debug("reply sent", "peer", peer, "bytes", len(reply))
}

// reject answers an unusable datagram without dispatching it.
func (s *UDPServer) reject(peer *net.UDPAddr, err error) {
	s.opts.logger.Warn("datagram rejected", "peer", peer, "error", err)
	if _, werr := s.conn.WriteToUDP(ErrorAck(err), peer); werr != nil {
		s.opts.logger.Warn("reply failed", "peer", peer, "error", werr)
	}
}

// Close stops Serve and closes the socket. Safe to call multiple times.
func (s *UDPServer) Close() error {
	s.running.Store(false)
	return s.closeConn()
}

func (s *UDPServer) closeConn() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// Addr returns the bound local address.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// UDPClient sends one datagram per message and waits for one reply.
// Lost messages are reported, never retried. A UDPClient is not safe for
// concurrent use.
type UDPClient struct {
	conn   *net.UDPConn
	opts   clientOptions
	policy sessionPolicy
	buf    []byte
	closed atomic.Bool
}

// DialUDP prepares a client sending to addr.
func DialUDP(addr string, opts ...ClientOption) (*UDPClient, error) {
	o := newClientOptions(opts)

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	return &UDPClient{
		conn:   conn,
		opts:   o,
		policy: sessionPolicy{min: o.minMessages},
		buf:    make([]byte, MaxUDPPayload),
	}, nil
}

// Send writes payload as one datagram and waits for one reply. If none
// arrives within the client timeout it returns an error matching ErrTimeout.
func (c *UDPClient) Send(payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	if len(payload) > MaxUDPPayload {
		return nil, errors.Wrapf(ErrRange, "%d bytes do not fit in one datagram", len(payload))
	}

	start := time.Now()
	if _, err := c.conn.Write(payload); err != nil {
		return nil, errors.Wrap(err, "send datagram")
	}
	c.policy.record()
	logSent(c.opts.logger, "udp", c.conn.RemoteAddr(), len(payload), start)

	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.timeout))
	n, err := c.conn.Read(c.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.opts.logger.Warn("no reply from server", "network", "udp", "timeout", c.opts.timeout)
			return nil, errors.Wrapf(ErrTimeout, "after %s", c.opts.timeout)
		}
		return nil, errors.Wrap(err, "receive reply")
	}
	logReply(c.opts.logger, "udp", n, start)

	return bytes.Clone(c.buf[:n]), nil
}

// SendMessage sends a text message and returns the server's reply.
func (c *UDPClient) SendMessage(msg string) (string, error) {
	reply, err := c.Send([]byte(msg))
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// SendFile sends the file at path as one envelope datagram. The server
// rejects envelopes larger than its datagram size with an error
// acknowledgment, reported as ErrRejected.
func (c *UDPClient) SendFile(path string) (string, error) {
	return sendFile(c.opts.logger, c.Send, path)
}

// End closes the client if enough messages were sent; otherwise it returns
// an error matching ErrTooFewMessages.
func (c *UDPClient) End() error {
	if err := c.policy.checkEnd(); err != nil {
		c.opts.logger.Warn("session cannot end yet", "error", err)
		return err
	}
	return c.Close()
}

// Sent returns the number of datagrams sent so far.
func (c *UDPClient) Sent() int {
	return c.policy.sent
}

// Close closes the socket. Safe to call multiple times.
func (c *UDPClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.opts.logger.Info("socket closed", "network", "udp")
	return c.conn.Close()
}
