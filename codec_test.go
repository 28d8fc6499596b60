package particle

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeCodecs returns a write codec and a read codec over the same buffer.
func pipeCodecs() (*Codec, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewWriteCodec(&buf), &buf
}

func TestCodec_Int32BigEndian(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteInt32(0x01020304))
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf.Bytes())

	v, err := NewReadCodec(buf).ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(0x01020304), v)
}

func TestCodec_IntegerRoundTrip(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteInt32(math.MinInt32))
	require.NoError(t, w.WriteInt64(math.MaxInt64))
	require.NoError(t, w.WriteInt64(-1))
	require.NoError(t, w.WriteInt16(-2))
	require.NoError(t, w.WriteInt8(-128))
	require.NoError(t, w.Flush())
	assert.Equal(t, 4+8+8+2+1, buf.Len())

	r := NewReadCodec(buf)
	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), i64)

	i64, err = r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i64)

	i16, err := r.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	i8, err := r.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(-128), i8)
}

func TestCodec_ShortSignedness(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteShort(65535, false))
	require.NoError(t, w.WriteShort(-1, true))
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf.Bytes())

	r := NewReadCodec(bytes.NewReader(buf.Bytes()))
	v, err := r.ReadShort(false)
	require.NoError(t, err)
	assert.Equal(t, 65535, v)

	v, err = r.ReadShort(true)
	require.NoError(t, err)
	assert.Equal(t, -1, v)
}

func TestCodec_Octet(t *testing.T) {
	r := NewBytesCodec([]byte{0xfe, 0xfe})

	v, err := r.ReadOctet(true)
	require.NoError(t, err)
	assert.Equal(t, -2, v)

	v, err = r.ReadOctet(false)
	require.NoError(t, err)
	assert.Equal(t, 254, v)
}

func TestCodec_Bool(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBool(false))
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{1, 0}, buf.Bytes())

	r := NewReadCodec(buf)
	v, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, v)
	v, err = r.ReadBool()
	require.NoError(t, err)
	assert.False(t, v)
}

func TestCodec_ReadBool_Invalid(t *testing.T) {
	_, err := NewBytesCodec([]byte{2}).ReadBool()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBool))

	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "bool", readErr.Op)
}

func TestCodec_String(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteString("héllo"))
	require.NoError(t, w.Flush())
	// 2-byte length, then 6 UTF-8 bytes
	assert.Equal(t, []byte{0x00, 0x06}, buf.Bytes()[:2])

	s, err := NewReadCodec(buf).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)
}

func TestCodec_String_MaxLength(t *testing.T) {
	w, buf := pipeCodecs()
	long := strings.Repeat("a", math.MaxUint16)
	require.NoError(t, w.WriteString(long))
	require.NoError(t, w.Flush())

	s, err := NewReadCodec(buf).ReadString()
	require.NoError(t, err)
	assert.Len(t, s, math.MaxUint16)
}

func TestCodec_String_TooLong(t *testing.T) {
	w, buf := pipeCodecs()
	err := w.WriteString(strings.Repeat("a", math.MaxUint16+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStringTooLong))

	require.NoError(t, w.Flush())
	assert.Zero(t, buf.Len(), "nothing is written for a rejected string")
}

func TestCodec_String_Truncated(t *testing.T) {
	_, err := NewBytesCodec([]byte{0x00, 0x05, 'a', 'b'}).ReadString()

	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestCodec_String_InvalidUTF8(t *testing.T) {
	_, err := NewBytesCodec([]byte{0x00, 0x02, 0xff, 0xfe}).ReadString()

	var readErr *ReadError
	assert.True(t, errors.As(err, &readErr))
}

func TestCodec_Bytes(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3}))
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes(), "bytes carry no header")

	r := NewReadCodec(buf)
	b, err := r.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	rest, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, rest)
}

func TestCodec_ReadAtEndOfInput(t *testing.T) {
	_, err := NewBytesCodec(nil).ReadInt32()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCodec_Bounded(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, w.WriteInt32(3))
	require.NoError(t, w.WriteBytes([]byte{7, 8, 9}))
	require.NoError(t, w.WriteInt32(42))
	require.NoError(t, w.Flush())

	r := NewReadCodec(buf)
	n, err := r.ReadInt32()
	require.NoError(t, err)

	frame, err := r.Bounded(int(n))
	require.NoError(t, err)

	// Reading past the boundary fails without touching the outer codec.
	_, err = frame.ReadInt32()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	next, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), next)
}

func TestCodec_Bounded_ShortInput(t *testing.T) {
	_, err := NewBytesCodec([]byte{1, 2}).Bounded(4)

	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "bounded", readErr.Op)
}

func TestCodec_InvalidMode(t *testing.T) {
	r := NewBytesCodec([]byte{1, 2, 3, 4})
	assert.True(t, r.CanRead())
	assert.False(t, r.CanWrite())

	err := r.WriteInt32(1)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.True(t, errors.Is(err, ErrInvalidMode))
	assert.True(t, errors.Is(r.Flush(), ErrInvalidMode))

	w, _ := pipeCodecs()
	assert.False(t, w.CanRead())
	_, err = w.ReadInt32()
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestCodec_CloseFlushes(t *testing.T) {
	var sink closeRecorder
	c := NewWriteCodec(&sink)
	require.NoError(t, c.WriteInt32(9))
	assert.Zero(t, sink.Len(), "writes are buffered")

	require.NoError(t, c.Close())
	assert.Equal(t, 4, sink.Len())
	assert.Equal(t, 1, sink.closed)
}

func TestFrame_ControlAndMessage(t *testing.T) {
	w, buf := pipeCodecs()
	require.NoError(t, writeControl(w, framePing))
	require.NoError(t, writeMessage[string, string](w, StringTranslator{}, "hi"))
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{0x00, 0, 0, 0, 0, 0x01, 0x00, 0x02, 'h', 'i'}, buf.Bytes())

	r := NewReadCodec(buf)
	tag, err := readFrameTag(r)
	require.NoError(t, err)
	assert.Equal(t, framePing, tag)

	tag, err = readFrameTag(r)
	require.NoError(t, err)
	assert.Equal(t, frameMessage, tag)

	msg, err := StringTranslator{}.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, "hi", msg)
}

func TestFrame_UnknownTag(t *testing.T) {
	_, err := readFrameTag(NewBytesCodec([]byte{0x7f}))
	assert.True(t, errors.Is(err, ErrUnknownFrame))
	assert.False(t, isTransportClosed(err))
}

func TestFrame_Datagram(t *testing.T) {
	data, err := encodeDatagram[[]byte, []byte](BytesTranslator{}, []byte{1, 2, 3}, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 1, 2, 3}, data)

	tag, payload, err := splitDatagram(data)
	require.NoError(t, err)
	assert.Equal(t, frameMessage, tag)

	msg, err := decodeDatagram[[]byte, []byte](BytesTranslator{}, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, msg)

	tag, payload, err = splitDatagram(controlDatagram(framePong))
	require.NoError(t, err)
	assert.Equal(t, framePong, tag)
	assert.Nil(t, payload)
}

func TestFrame_DatagramTooLarge(t *testing.T) {
	_, err := encodeDatagram[[]byte, []byte](BytesTranslator{}, make([]byte, 16), 16)
	assert.True(t, errors.Is(err, ErrMessageTooLarge))
}
