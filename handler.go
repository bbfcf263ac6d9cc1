package csat

import (
	"context"
	"net"
)

// ConnHandler is a Handler running every accepted connection as a Conn.
type ConnHandler struct {
	ctx    context.Context
	opts   []Option
	logger Logger
}

// NewConnHandler returns a Handler dispatching every request to d.
// ctx bounds the lifetime of every connection. Canceling it closes each
// connection once its current request is answered; idle ones close at once.
// Pass context.Background() to let connections outlive server shutdown.
func NewConnHandler(ctx context.Context, d Dispatcher, opts ...Option) *ConnHandler {
	opts = append([]Option{DispatcherOption(d)}, opts...)

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = defaultLogger()
	}

	return &ConnHandler{ctx: ctx, opts: opts, logger: logger}
}

// Handle serves conn until the peer goes away.
func (h *ConnHandler) Handle(conn *net.TCPConn) {
	c, err := NewConn(conn, h.opts...)
	if err != nil {
		h.logger.Error("rejecting connection", "addr", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	// Errors are logged by Run; the connection is closed either way.
	_ = c.Run(h.ctx)
}
