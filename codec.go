// Package particle provides symmetrical TCP and UDP client/server building
// blocks over a hand-rolled binary wire protocol. It covers the wire codec,
// the connection lifecycle for stream and datagram endpoints, and a
// ping based keepalive that tells live peers from dead ones.
package particle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxStringLength is the largest byte length a 2-byte header can describe.
const maxStringLength = math.MaxUint16

// Codec reads and writes the primitive wire encodings over a byte source,
// a byte sink, or both. All integers are big-endian.
//
// A Codec is not safe for concurrent use. Connections serialize their
// writers; exactly one goroutine reads.
type Codec struct {
	r      io.Reader
	w      *bufio.Writer
	closer io.Closer
	buf    [8]byte
}

// NewReadCodec returns a read-only codec. Writes fail with ErrInvalidMode.
func NewReadCodec(r io.Reader) *Codec {
	c := &Codec{r: bufio.NewReader(r)}
	if cl, ok := r.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// NewWriteCodec returns a write-only codec. Writes are buffered until Flush.
func NewWriteCodec(w io.Writer) *Codec {
	c := &Codec{w: bufio.NewWriter(w)}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// NewCodec returns a duplex codec over rw.
func NewCodec(rw io.ReadWriter) *Codec {
	c := &Codec{
		r: bufio.NewReader(rw),
		w: bufio.NewWriter(rw),
	}
	if cl, ok := rw.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// NewBytesCodec returns a read-only codec that sees exactly b.
func NewBytesCodec(b []byte) *Codec {
	return &Codec{r: bytes.NewReader(b)}
}

// Bounded reads exactly n bytes from c and returns a read-only codec over
// them. Reads on the returned codec never observe bytes past the boundary.
func (c *Codec) Bounded(n int) (*Codec, error) {
	if n < 0 {
		return nil, &ReadError{Op: "bounded", Err: errors.Errorf("negative length %d", n)}
	}
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil, relabel("bounded", err)
	}
	return NewBytesCodec(b), nil
}

// CanRead reports whether the codec has a source.
func (c *Codec) CanRead() bool { return c.r != nil }

// CanWrite reports whether the codec has a sink.
func (c *Codec) CanWrite() bool { return c.w != nil }

func (c *Codec) readFull(op string, p []byte) error {
	if c.r == nil {
		return &ReadError{Op: op, Err: ErrInvalidMode}
	}
	if _, err := io.ReadFull(c.r, p); err != nil {
		return &ReadError{Op: op, Err: err}
	}
	return nil
}

func (c *Codec) write(op string, p []byte) error {
	if c.w == nil {
		return &WriteError{Op: op, Err: ErrInvalidMode}
	}
	if _, err := c.w.Write(p); err != nil {
		return &WriteError{Op: op, Err: err}
	}
	return nil
}

func (c *Codec) WriteInt32(v int32) error {
	binary.BigEndian.PutUint32(c.buf[:4], uint32(v))
	return c.write("int32", c.buf[:4])
}

func (c *Codec) ReadInt32() (int32, error) {
	if err := c.readFull("int32", c.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(c.buf[:4])), nil
}

func (c *Codec) WriteInt64(v int64) error {
	binary.BigEndian.PutUint64(c.buf[:8], uint64(v))
	return c.write("int64", c.buf[:8])
}

func (c *Codec) ReadInt64() (int64, error) {
	if err := c.readFull("int64", c.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(c.buf[:8])), nil
}

func (c *Codec) WriteInt16(v int16) error {
	return c.WriteUint16(uint16(v))
}

func (c *Codec) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

func (c *Codec) WriteUint16(v uint16) error {
	binary.BigEndian.PutUint16(c.buf[:2], v)
	return c.write("short", c.buf[:2])
}

func (c *Codec) ReadUint16() (uint16, error) {
	if err := c.readFull("short", c.buf[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.buf[:2]), nil
}

// WriteShort writes the low 16 bits of v. Both modes put the same bits on
// the wire; unsigned mode documents that v is in 0..65535.
func (c *Codec) WriteShort(v int, signed bool) error {
	if signed {
		return c.WriteInt16(int16(v))
	}
	return c.WriteUint16(uint16(v))
}

// ReadShort reads 2 bytes, sign-extending when signed and zero-extending
// otherwise.
func (c *Codec) ReadShort(signed bool) (int, error) {
	if signed {
		v, err := c.ReadInt16()
		return int(v), err
	}
	v, err := c.ReadUint16()
	return int(v), err
}

func (c *Codec) WriteUint8(v uint8) error {
	c.buf[0] = v
	return c.write("byte", c.buf[:1])
}

func (c *Codec) ReadUint8() (uint8, error) {
	if err := c.readFull("byte", c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

func (c *Codec) WriteInt8(v int8) error { return c.WriteUint8(uint8(v)) }

func (c *Codec) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}

// WriteOctet writes the low 8 bits of v.
func (c *Codec) WriteOctet(v int) error { return c.WriteUint8(uint8(v)) }

// ReadOctet reads one byte as -128..127 when signed, 0..255 otherwise.
func (c *Codec) ReadOctet(signed bool) (int, error) {
	if signed {
		v, err := c.ReadInt8()
		return int(v), err
	}
	v, err := c.ReadUint8()
	return int(v), err
}

func (c *Codec) WriteBool(v bool) error {
	if v {
		return c.WriteUint8(1)
	}
	return c.WriteUint8(0)
}

// ReadBool accepts only 0 and 1.
func (c *Codec) ReadBool() (bool, error) {
	v, err := c.ReadUint8()
	if err != nil {
		return false, relabel("bool", err)
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &ReadError{Op: "bool", Err: errors.Wrapf(ErrInvalidBool, "byte 0x%02x", v)}
	}
}

// WriteString writes a 2-byte unsigned length followed by the UTF-8 bytes.
func (c *Codec) WriteString(s string) error {
	if len(s) > maxStringLength {
		return &WriteError{Op: "string", Err: errors.Wrapf(ErrStringTooLong, "%d bytes", len(s))}
	}
	if err := c.WriteUint16(uint16(len(s))); err != nil {
		return relabel("string", err)
	}
	if c.w == nil {
		return &WriteError{Op: "string", Err: ErrInvalidMode}
	}
	if _, err := c.w.WriteString(s); err != nil {
		return &WriteError{Op: "string", Err: err}
	}
	return nil
}

func (c *Codec) ReadString() (string, error) {
	n, err := c.ReadUint16()
	if err != nil {
		return "", relabel("string", err)
	}
	b := make([]byte, n)
	if err := c.readFull("string", b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &ReadError{Op: "string", Err: errors.New("invalid utf-8")}
	}
	return string(b), nil
}

// WriteBytes writes b without any length header.
func (c *Codec) WriteBytes(b []byte) error {
	return c.write("bytes", b)
}

// ReadBytes reads exactly n bytes.
func (c *Codec) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, &ReadError{Op: "bytes", Err: errors.Errorf("negative length %d", n)}
	}
	b := make([]byte, n)
	if err := c.readFull("bytes", b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadAll drains the source until end of input. It is meant for whole
// payload reads on bounded or datagram codecs.
func (c *Codec) ReadAll() ([]byte, error) {
	if c.r == nil {
		return nil, &ReadError{Op: "all", Err: ErrInvalidMode}
	}
	b, err := io.ReadAll(c.r)
	if err != nil {
		return nil, &ReadError{Op: "all", Err: err}
	}
	return b, nil
}

// Flush forces buffered writes to the sink.
func (c *Codec) Flush() error {
	if c.w == nil {
		return &WriteError{Op: "flush", Err: ErrInvalidMode}
	}
	if err := c.w.Flush(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes pending writes and releases the underlying source and sink.
// A codec has a single owner; Close must be called once.
func (c *Codec) Close() error {
	var err error
	if c.w != nil {
		err = c.w.Flush()
	}
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// relabel keeps the cause of a codec error but reports it under op.
func relabel(op string, err error) error {
	switch e := err.(type) {
	case *ReadError:
		return &ReadError{Op: op, Err: e.Err}
	case *WriteError:
		return &WriteError{Op: op, Err: e.Err}
	}
	return err
}
