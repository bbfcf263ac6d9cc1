package csat

import (
	"io"
	"math"
	"slices"

	"github.com/pkg/errors"
)

const (
	// frameHeaderSize is the size of the length prefix in front of every TCP payload.
	frameHeaderSize = Uint32Size
	// readChunkSize bounds a single read while a payload is being accumulated,
	// so a large length prefix does not allocate its full size up front.
	readChunkSize = 4096
	// MaxFrameLength is the largest payload a 4-byte length prefix can describe.
	MaxFrameLength = math.MaxUint32
	// DefaultMaxFrameLength is the payload cap applied by servers unless configured otherwise.
	DefaultMaxFrameLength = 64 * 1024 * 1024
)

// Frame returns payload prefixed with its length as 4 big-endian bytes.
func Frame(payload []byte) ([]byte, error) {
	header, err := EncodeUint32(len(payload))
	if err != nil {
		return nil, errors.Wrap(err, "frame")
	}
	buf := make([]byte, 0, frameHeaderSize+len(payload))
	buf = append(buf, header...)
	return append(buf, payload...), nil
}

// WriteFrame writes one frame to w in a single Write call.
// It flushes w if it implements Flush (e.g. *bufio.Writer).
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := Frame(payload)
	if err != nil {
		return err
	}
	n, err := w.Write(frame)
	if err != nil {
		return errors.Wrap(err, "write frame")
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// It returns io.EOF when r ends before the first byte of the length prefix,
// which callers treat as the peer ending the session cleanly, and an error
// matching ErrTruncatedFrame when r ends anywhere inside the frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	return NewReassembler(r, 0).Next()
}

// ReadFrameLimit is ReadFrame with a cap on the declared payload length.
// A length prefix above maxLength fails with ErrFrameTooLarge before any
// payload byte is read.
func ReadFrameLimit(r io.Reader, maxLength uint32) ([]byte, error) {
	return NewReassembler(r, maxLength).Next()
}

// ReadState is the position of a Reassembler within the frame cycle.
type ReadState int32

const (
	// AwaitingLength means the next bytes on the stream are a length prefix.
	AwaitingLength ReadState = iota
	// AwaitingPayload means a length prefix was read and its payload is pending.
	AwaitingPayload
	// Dispatched means a complete payload was handed out.
	Dispatched
	// Closed is terminal: the stream ended or failed.
	Closed
)

func (s ReadState) String() string {
	switch s {
	case AwaitingLength:
		return "awaiting_length"
	case AwaitingPayload:
		return "awaiting_payload"
	case Dispatched:
		return "dispatched"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Reassembler turns a byte stream into discrete payloads.
// It is not safe for concurrent use; it belongs to the goroutine owning the stream.
type Reassembler struct {
	r         io.Reader
	maxLength uint32
	state     ReadState
	err       error
}

// NewReassembler returns a Reassembler reading from r.
// A maxLength of 0 accepts any length the prefix can express.
func NewReassembler(r io.Reader, maxLength uint32) *Reassembler {
	return &Reassembler{r: r, maxLength: maxLength}
}

// State returns the current read state.
func (ra *Reassembler) State() ReadState {
	return ra.state
}

// Err returns the error that moved the Reassembler to Closed, if any.
func (ra *Reassembler) Err() error {
	return ra.err
}

// Next reads the next complete payload.
// Once Next has returned an error the Reassembler is Closed and every later
// call returns ErrConnectionClosed.
func (ra *Reassembler) Next() ([]byte, error) {
	if ra.state == Closed {
		return nil, ErrConnectionClosed
	}

	ra.state = AwaitingLength
	header, err := readExact(ra.r, frameHeaderSize)
	if err != nil {
		if len(header) == 0 && errors.Is(err, io.EOF) {
			return nil, ra.close(io.EOF)
		}
		return nil, ra.close(truncated(err, "length prefix", len(header), frameHeaderSize))
	}

	length, err := DecodeUint32(header)
	if err != nil {
		return nil, ra.close(err)
	}
	if ra.maxLength > 0 && length > ra.maxLength {
		return nil, ra.close(errors.Wrapf(ErrFrameTooLarge, "length %d exceeds %d", length, ra.maxLength))
	}
	if !fitsInt(length) {
		return nil, ra.close(errors.Wrapf(ErrFrameTooLarge, "length %d exceeds platform int", length))
	}

	ra.state = AwaitingPayload
	payload, err := readExact(ra.r, int(length))
	if err != nil {
		return nil, ra.close(truncated(err, "payload", len(payload), int(length)))
	}

	ra.state = Dispatched
	return payload, nil
}

// fitsInt reports whether n converts to int without wrapping. It fails for
// large prefixes on 32-bit platforms.
func fitsInt(n uint32) bool {
	return uint64(n) <= uint64(math.MaxInt)
}

func (ra *Reassembler) close(err error) error {
	ra.state = Closed
	ra.err = err
	return err
}

// truncated maps end-of-stream inside a frame to ErrTruncatedFrame and
// leaves every other read error intact.
func truncated(err error, part string, got, want int) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrTruncatedFrame, "%s: got %d of %d bytes", part, got, want)
	}
	return errors.Wrapf(err, "read %s", part)
}

// readExact reads exactly n bytes, looping over short reads in chunks of at
// most readChunkSize. It returns io.EOF if r ended before any byte and
// io.ErrUnexpectedEOF if it ended after some.
func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, 0, min(n, readChunkSize))
	for len(buf) < n {
		want := min(n-len(buf), readChunkSize)
		buf = slices.Grow(buf, want)
		m, err := r.Read(buf[len(buf) : len(buf)+want])
		buf = buf[:len(buf)+m]
		if len(buf) == n {
			return buf, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return buf, err
		}
	}
	return buf, nil
}
