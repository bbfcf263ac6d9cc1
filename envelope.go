package csat

import (
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// MaxNameLength is the longest UTF-8 file name an envelope can carry.
const MaxNameLength = math.MaxUint16

// Pack encodes a file as one payload:
//
//	[2 bytes] name length (big-endian)
//	[N bytes] name (UTF-8)
//	[rest]    content
func Pack(name string, content []byte) ([]byte, error) {
	if !utf8.ValidString(name) {
		return nil, errors.Wrap(ErrMalformedEnvelope, "name is not valid UTF-8")
	}
	if len(name) > MaxNameLength {
		return nil, errors.Wrapf(ErrNameTooLong, "%d bytes, max %d", len(name), MaxNameLength)
	}
	nameLen, err := EncodeUint16(len(name))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, Uint16Size+len(name)+len(content))
	buf = append(buf, nameLen...)
	buf = append(buf, name...)
	return append(buf, content...), nil
}

// Unpack splits a payload produced by Pack into the file name and content.
// The returned content aliases payload; it is empty, not nil, for an empty file.
func Unpack(payload []byte) (string, []byte, error) {
	if len(payload) < Uint16Size {
		return "", nil, errors.Wrapf(ErrMalformedEnvelope, "%d bytes, too short for name length", len(payload))
	}
	nameLen, err := DecodeUint16(payload[:Uint16Size])
	if err != nil {
		return "", nil, err
	}

	end := Uint16Size + int(nameLen)
	if len(payload) < end {
		return "", nil, errors.Wrapf(ErrMalformedEnvelope, "name length %d, only %d bytes follow", nameLen, len(payload)-Uint16Size)
	}
	name := payload[Uint16Size:end]
	if !utf8.Valid(name) {
		return "", nil, errors.Wrap(ErrMalformedEnvelope, "name is not valid UTF-8")
	}
	return string(name), payload[end:], nil
}
