package csat

import "io"

// Message is one request or reply as seen by a Codec.
type Message interface {
	// Length is the number of payload bytes.
	Length() int
	// Body is the payload.
	Body() []byte
}

// Payload is a Message holding raw, unstructured bytes.
type Payload []byte

// Length returns the number of bytes in the payload.
func (p Payload) Length() int {
	return len(p)
}

// Body returns the payload bytes.
func (p Payload) Body() []byte {
	return p
}

// Codec turns a byte stream into Messages and back.
//
// Decode reads from the stream itself, so it decides how many bytes make up
// one message; that is where stream reassembly happens.
type Codec interface {
	// Decode returns the next complete message. It returns io.EOF only when
	// the stream ended cleanly between messages.
	Decode(r io.Reader) (Message, error)
	// Encode returns the wire form of m.
	Encode(m Message) ([]byte, error)
}

// FrameCodec is the length-prefixed Codec used on TCP connections.
type FrameCodec struct {
	// MaxLength caps the declared payload length; 0 means no cap.
	MaxLength uint32
}

// Decode reads one frame and returns its payload.
func (c FrameCodec) Decode(r io.Reader) (Message, error) {
	payload, err := ReadFrameLimit(r, c.MaxLength)
	if err != nil {
		return nil, err
	}
	return Payload(payload), nil
}

// Encode prefixes the message body with its length.
func (c FrameCodec) Encode(m Message) ([]byte, error) {
	return Frame(m.Body())
}
