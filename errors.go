package csat

import "github.com/pkg/errors"

// Errors returned by the codec and frame layers.
var (
	// ErrRange is returned when an integer does not fit in its fixed-width encoding.
	ErrRange = errors.New("value out of range")
	// ErrFormat is returned when a fixed-width integer is decoded from the wrong number of bytes.
	ErrFormat = errors.New("invalid integer encoding")
	// ErrTruncatedFrame is returned when the stream ends in the middle of a frame.
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrFrameTooLarge is returned when a length prefix exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Errors returned by the file envelope and file store.
var (
	// ErrMalformedEnvelope is returned when a payload is not a valid file envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrNameTooLong is returned when a file name does not fit in the 2-byte length field.
	ErrNameTooLong = errors.New("file name too long")
	// ErrUnsafeName is returned when a file name would escape the destination directory.
	ErrUnsafeName = errors.New("unsafe file name")
)

// Errors returned by the orchestrators.
var (
	// ErrPortInUse is returned when a server address is already bound.
	ErrPortInUse = errors.New("port already in use")
	// ErrTimeout is returned by the UDP client when no reply arrives in time.
	ErrTimeout = errors.New("no reply before timeout")
	// ErrTooFewMessages is returned when a session is ended before the minimum message count.
	ErrTooFewMessages = errors.New("too few messages sent")
	// ErrRejected is returned when the server answers with an error acknowledgment.
	ErrRejected = errors.New("rejected by server")
)
