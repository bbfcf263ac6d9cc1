package csat

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strconv"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	frame, err := Frame([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}, frame)
}

func TestReadFrame_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("hello world"),
		bytes.Repeat([]byte{0xab}, readChunkSize-1),
		bytes.Repeat([]byte{0xcd}, readChunkSize),
		bytes.Repeat([]byte{0xef}, 3*readChunkSize+17),
	}

	for _, p := range payloads {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, p))

		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestReadFrame_ShortReads(t *testing.T) {
	payload := bytes.Repeat([]byte("abc"), 5000)
	frame, err := Frame(payload)
	require.NoError(t, err)

	// One byte per Read call exercises every accumulation loop.
	got, err := ReadFrame(iotest.OneByteReader(bytes.NewReader(frame)))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrame_Sequence(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []string{"one", "two", "three"} {
		require.NoError(t, WriteFrame(&buf, []byte(s)))
	}

	ra := NewReassembler(&buf, 0)
	for _, want := range []string{"one", "two", "three"} {
		got, err := ra.Next()
		require.NoError(t, err)
		require.Equal(t, want, string(got))
		require.Equal(t, Dispatched, ra.State())
	}

	_, err := ra.Next()
	require.Equal(t, io.EOF, err)
	require.Equal(t, Closed, ra.State())
}

func TestReadFrame_CleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	require.Equal(t, io.EOF, err)
	require.False(t, errors.Is(err, ErrTruncatedFrame))
}

func TestReadFrame_TruncatedPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}))
	require.True(t, errors.Is(err, ErrTruncatedFrame), "got %v", err)
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 10, 'a', 'b', 'c'}))
	require.True(t, errors.Is(err, ErrTruncatedFrame), "got %v", err)

	// Prefix complete, payload entirely missing.
	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 1}))
	require.True(t, errors.Is(err, ErrTruncatedFrame), "got %v", err)
}

func TestReadFrame_ReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ReadFrame(iotest.ErrReader(boom))
	require.True(t, errors.Is(err, boom), "got %v", err)
	require.False(t, errors.Is(err, ErrTruncatedFrame))
}

func TestReadFrameLimit(t *testing.T) {
	frame, err := Frame(bytes.Repeat([]byte{1}, 100))
	require.NoError(t, err)

	_, err = ReadFrameLimit(bytes.NewReader(frame), 99)
	require.True(t, errors.Is(err, ErrFrameTooLarge), "got %v", err)

	got, err := ReadFrameLimit(bytes.NewReader(frame), 100)
	require.NoError(t, err)
	require.Len(t, got, 100)
}

func TestFitsInt(t *testing.T) {
	require.True(t, fitsInt(0))
	require.True(t, fitsInt(math.MaxInt32))
	require.Equal(t, strconv.IntSize == 64, fitsInt(math.MaxUint32))
}

func TestReassembler_ClosedIsTerminal(t *testing.T) {
	ra := NewReassembler(bytes.NewReader([]byte{0, 0, 0}), 0)

	_, err := ra.Next()
	require.True(t, errors.Is(err, ErrTruncatedFrame))
	require.Equal(t, Closed, ra.State())
	require.Equal(t, err, ra.Err())

	_, err = ra.Next()
	require.Equal(t, ErrConnectionClosed, err)
}

func TestReassembler_States(t *testing.T) {
	r := &stagedReader{data: []byte{0, 0, 0, 3}}
	ra := NewReassembler(r, 0)
	r.ra = ra
	require.Equal(t, AwaitingLength, ra.State())

	_, err := ra.Next()
	require.True(t, errors.Is(err, ErrTruncatedFrame))
	require.Equal(t, AwaitingPayload, r.state)
	require.Equal(t, Closed, ra.State())
}

// stagedReader records the reassembler state when it runs out of data.
type stagedReader struct {
	data  []byte
	ra    *Reassembler
	state ReadState
}

func (r *stagedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		if r.ra != nil {
			r.state = r.ra.State()
		}
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestWriteFrame_Flushes(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, WriteFrame(w, []byte("abc")))
	require.Equal(t, 7, buf.Len())
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	return len(p) / 2, nil
}

func TestWriteFrame_ShortWrite(t *testing.T) {
	err := WriteFrame(shortWriter{}, []byte("abcdef"))
	require.Equal(t, io.ErrShortWrite, err)
}

func TestFrameCodec(t *testing.T) {
	codec := FrameCodec{MaxLength: 16}

	data, err := codec.Encode(Payload("ping"))
	require.NoError(t, err)

	msg, err := codec.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 4, msg.Length())
	require.Equal(t, []byte("ping"), msg.Body())

	big, err := codec.Encode(Payload(bytes.Repeat([]byte{1}, 17)))
	require.NoError(t, err)
	_, err = codec.Decode(bytes.NewReader(big))
	require.True(t, errors.Is(err, ErrFrameTooLarge))
}
