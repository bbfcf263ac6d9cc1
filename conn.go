// Package csat implements a small messaging and file-transfer protocol over
// TCP and UDP.
//
// On TCP every payload travels as a frame: a 4-byte big-endian length
// followed by that many bytes. On UDP a datagram is a payload. A file travels
// as an envelope payload: a 2-byte big-endian name length, the UTF-8 name and
// the file content. Every request gets exactly one reply.
package csat

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidDispatcher is returned when no dispatcher is provided.
	ErrInvalidDispatcher = errors.New("invalid dispatcher")
	// ErrMessageTooLarge is returned when a message exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// limitedReader wraps a reader and returns ErrMessageTooLarge when the limit is exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{r: r, remaining: limit}
}

func (l *limitedReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, ErrMessageTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	return
}

// reset resets the limit counter for reuse with a new message.
// Only remaining is reset because the underlying reader (bufio.Reader)
// maintains its own buffer state and continues reading from where it left off.
func (l *limitedReader) reset(limit int64) {
	l.remaining = limit
}

// Conn is the server side of one TCP connection.
// It reads one request, dispatches it, writes exactly one reply and only
// then reads the next request. The connection is owned by the goroutine
// calling Run and is closed exactly once.
type Conn struct {
	rawConn       net.Conn
	reader        *bufio.Reader
	limitedReader *limitedReader
	logger        Logger
	id            string

	opts options

	state  atomic.Int32
	closed atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// defaultMaxPackageLength is the default maximum size of a single message.
const defaultMaxPackageLength = DefaultMaxFrameLength

// NewConn creates a new connection wrapper around the given connection.
// It applies the provided options and validates them before returning.
// Returns an error if the required dispatcher is missing.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.maxReadLength <= 0 || uint64(opts.maxReadLength) > MaxFrameLength {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.dispatcher == nil {
		return ErrInvalidDispatcher
	}

	if opts.heartbeat < 0 {
		opts.heartbeat = 0
	}

	if opts.codec == nil {
		opts.codec = FrameCodec{MaxLength: uint32(opts.maxReadLength)}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// newConnWithOptions creates a new Conn with the given options.
func newConnWithOptions(c net.Conn, opts options) *Conn {
	reader := bufio.NewReaderSize(c, readChunkSize)
	id := uuid.NewString()
	cc := &Conn{
		rawConn:       c,
		reader:        reader,
		limitedReader: newLimitedReader(reader, messageLimit(opts)),
		logger:        withFields(opts.logger, "conn_id", id, "addr", c.RemoteAddr()),
		id:            id,
		opts:          opts,
	}

	return cc
}

// messageLimit is the byte budget of one message including its frame header.
func messageLimit(opts options) int64 {
	return int64(opts.maxReadLength) + frameHeaderSize
}

// Run serves requests until the peer closes the connection, a read or
// dispatch error occurs, or ctx is canceled. A clean close by the peer
// between frames returns nil. The connection is closed when Run returns.
//
// Canceling ctx stops reading but does not interrupt a request already
// being dispatched: its reply is written before Run returns.
func (c *Conn) Run(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.logger.Info("connection established")
	c.logger.Debug("connection options",
		"max_read_length", c.opts.maxReadLength,
		"heartbeat", c.opts.heartbeat)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer cancel()
		return c.readLoop(child)
	})

	// An expired read deadline unblocks a pending read without touching
	// the write side, so an in-flight reply still goes out.
	group.Go(func() error {
		<-child.Done()
		_ = c.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	err := group.Wait()
	c.closeConn()
	c.state.Store(int32(Closed))

	switch {
	case err == nil || errors.Is(err, io.EOF):
		c.logger.Info("connection closed")
		return nil
	case errors.Is(err, context.Canceled):
		c.logger.Info("connection closed", "reason", err)
		return err
	default:
		c.logger.Info("connection closed with error", "error", err)
		return err
	}
}

// Close cancels Run and closes the underlying connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.closeConn()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// State returns where the connection is in its request cycle.
func (c *Conn) State() ReadState {
	return ReadState(c.state.Load())
}

// ID returns the identifier used for this connection in logs.
func (c *Conn) ID() string {
	return c.id
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop runs the request cycle: read one message, dispatch it, write the reply.
func (c *Conn) readLoop(ctx context.Context) error {
	limit := messageLimit(c.opts)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.state.Store(int32(AwaitingLength))
		c.setDeadline(c.rawConn.SetReadDeadline)
		// Recheck after moving the deadline so a cancellation racing with
		// it cannot be overwritten.
		if err := ctx.Err(); err != nil {
			return err
		}
		c.limitedReader.reset(limit)

		message, err := c.opts.codec.Decode(c.limitedReader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				c.logger.Debug("peer closed connection")
				return io.EOF
			}
			c.logger.Warn("read error", "error", err)
			return err
		}

		c.state.Store(int32(Dispatched))
		reply, err := c.opts.dispatcher.Dispatch(context.WithoutCancel(ctx), c.Addr(), message.Body())
		if err != nil {
			c.logger.Debug("dispatch error", "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
			reply = ErrorAck(err)
		}

		if err = c.write(reply); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// write encodes body and sends it with a deadline.
func (c *Conn) write(body []byte) error {
	data, err := c.opts.codec.Encode(Payload(body))
	if err != nil {
		return errors.Wrap(err, "encode reply")
	}

	c.setDeadline(c.rawConn.SetWriteDeadline)

	n, err := c.rawConn.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		c.logger.Debug("write error", "error", err)
		return errors.Wrap(err, "write reply")
	}

	return nil
}

func (c *Conn) setDeadline(set func(time.Time) error) {
	if c.opts.heartbeat > 0 {
		_ = set(time.Now().Add(c.opts.heartbeat * 2))
	}
}

// closeConn closes the underlying connection once.
func (c *Conn) closeConn() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rawConn.Close()
}
