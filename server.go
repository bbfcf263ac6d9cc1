package csat

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling incoming TCP connections.
// Implementations should handle the connection lifecycle and message processing.
type Handler interface {
	// Handle is called for each new connection on its own goroutine.
	// The implementation owns the connection and must close it.
	Handle(conn *net.TCPConn)
}

// Server represents a TCP server that listens for incoming connections.
type Server struct {
	listener *net.TCPListener
	opts     serverOptions

	handlers sync.WaitGroup

	running     atomic.Bool
	closed      atomic.Bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// New creates a new TCP server bound to the specified address.
//
// Before binding, New probes the address with a throwaway bind; if that
// fails the port is treated as taken and New returns an error matching
// ErrPortInUse instead of starting.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	if err := probeTCP(addr); err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener:    listener,
		opts:        newServerOptions(opts),
		shutdownNow: make(chan struct{}),
	}
	s.running.Store(true)

	return s, nil
}

// probeTCP reports ErrPortInUse when addr cannot be bound.
// Ephemeral addresses (port 0) always succeed.
func probeTCP(addr *net.TCPAddr) error {
	if addr.Port == 0 {
		return nil
	}
	l, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return errors.Wrapf(ErrPortInUse, "tcp %s: %v", addr, err)
	}
	return l.Close()
}

// Serve starts accepting connections and dispatching them to the handler.
// It blocks until the context is canceled or an unrecoverable error occurs.
// When the context is canceled, it stops accepting new connections; handlers
// already running are not interrupted and finish their current request.
// If ServerShutdownTimeoutOption is set, the server waits up to the specified
// duration before stopping. Call Close() to bypass the timeout.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	logger := s.opts.logger
	logger.Info("server started", "network", "tcp", "addr", s.listener.Addr())

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.opts.shutdownTimeout > 0 {
			logger.Info("graceful shutdown initiated", "timeout", s.opts.shutdownTimeout)
			select {
			case <-time.After(s.opts.shutdownTimeout):
			case <-s.shutdownNow:
				logger.Debug("shutdown timeout bypassed via Close()")
			case <-done:
				return
			}
		}

		s.running.Store(false)
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if !s.running.Load() {
				logger.Info("server stopped", "network", "tcp", "addr", s.listener.Addr())
				_ = s.closeListener()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logger.Error("accept error", "error", err)
			return err
		}

		logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler.Handle(conn)
		}()
	}
}

// Wait blocks until every Handle call started by Serve has returned.
// Call it after Serve returns to let in-flight requests finish.
func (s *Server) Wait() {
	s.handlers.Wait()
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.running.Store(false)

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.closeListener()
}

// closeListener closes the listener once.
func (s *Server) closeListener() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
