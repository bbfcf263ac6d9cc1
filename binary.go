package csat

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// byteOrder is the network byte order used by every fixed-width field on the wire.
var byteOrder = binary.BigEndian

// Fixed-width field sizes.
const (
	Uint16Size = 2
	Uint32Size = 4
)

// EncodeUint32 returns n as exactly 4 big-endian bytes.
func EncodeUint32(n int) ([]byte, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrRange, "%d does not fit in %d bytes", n, Uint32Size)
	}
	b := make([]byte, Uint32Size)
	byteOrder.PutUint32(b, uint32(n))
	return b, nil
}

// DecodeUint32 decodes exactly 4 big-endian bytes.
func DecodeUint32(b []byte) (uint32, error) {
	if len(b) != Uint32Size {
		return 0, errors.Wrapf(ErrFormat, "uint32 needs %d bytes, got %d", Uint32Size, len(b))
	}
	return byteOrder.Uint32(b), nil
}

// EncodeUint16 returns n as exactly 2 big-endian bytes.
func EncodeUint16(n int) ([]byte, error) {
	if n < 0 || n > math.MaxUint16 {
		return nil, errors.Wrapf(ErrRange, "%d does not fit in %d bytes", n, Uint16Size)
	}
	b := make([]byte, Uint16Size)
	byteOrder.PutUint16(b, uint16(n))
	return b, nil
}

// DecodeUint16 decodes exactly 2 big-endian bytes.
func DecodeUint16(b []byte) (uint16, error) {
	if len(b) != Uint16Size {
		return 0, errors.Wrapf(ErrFormat, "uint16 needs %d bytes, got %d", Uint16Size, len(b))
	}
	return byteOrder.Uint16(b), nil
}
