package csat

import (
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultMinMessages is how many messages a client session must send before it may end.
	DefaultMinMessages = 5
	// EndToken is the user input that ends an interactive session.
	EndToken = "end"

	defaultClientTimeout = 5 * time.Second
)

// IsEndToken reports whether line asks to end the session. The check ignores
// case and surrounding whitespace.
func IsEndToken(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), EndToken)
}

// sessionPolicy counts sent messages and guards the end of a session.
// The rule lives on the client only; servers never count messages.
type sessionPolicy struct {
	min  int
	sent int
}

func (p *sessionPolicy) record() {
	p.sent++
}

func (p *sessionPolicy) checkEnd() error {
	if p.sent < p.min {
		return errors.Wrapf(ErrTooFewMessages, "sent %d, need at least %d", p.sent, p.min)
	}
	return nil
}

// logSent records the per-message diagnostics shown for every request.
func logSent(logger Logger, network string, remote net.Addr, n int, at time.Time) {
	host, port := splitAddr(remote)
	logger.Info("message sent",
		"network", network,
		"dest_ip", host,
		"dest_port", port,
		"bytes", n,
		"sent_at", at.Format(timestampLayout))
}

// logReply records the receipt time and round trip of a reply.
func logReply(logger Logger, network string, n int, start time.Time) {
	now := time.Now()
	logger.Info("reply received",
		"network", network,
		"bytes", n,
		"received_at", now.Format(timestampLayout),
		"rtt", now.Sub(start))
}

func splitAddr(addr net.Addr) (string, string) {
	if addr == nil {
		return "", ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}
	return host, port
}

// Session is the interactive surface shared by the TCP and UDP clients.
type Session interface {
	// SendMessage sends one text message and returns the reply.
	SendMessage(msg string) (string, error)
	// SendFile sends one file and returns the server acknowledgment.
	SendFile(path string) (string, error)
	// End closes the session once the minimum message count is met.
	End() error
	// Sent returns the number of messages sent.
	Sent() int
	// Close closes the session unconditionally.
	Close() error
}

var (
	_ Session = (*Client)(nil)
	_ Session = (*UDPClient)(nil)
)
