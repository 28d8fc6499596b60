package particle

import (
	"bytes"

	"github.com/pkg/errors"
)

// frameTag is the first byte of every frame. It keeps keepalive traffic
// apart from application messages, so a ping is never handed to a
// translator.
type frameTag uint8

const (
	framePing    frameTag = 0x00
	frameMessage frameTag = 0x01
	framePong    frameTag = 0x02 // UDP only
	frameClose   frameTag = 0x03 // UDP only
)

// pingSentinel follows the tag of ping and pong frames.
const pingSentinel int32 = 0

func (t frameTag) String() string {
	switch t {
	case framePing:
		return "ping"
	case frameMessage:
		return "message"
	case framePong:
		return "pong"
	case frameClose:
		return "close"
	}
	return "unknown"
}

// writeControl writes a ping, pong or close frame. The caller flushes.
func writeControl(c *Codec, tag frameTag) error {
	if err := c.WriteUint8(uint8(tag)); err != nil {
		return relabel(tag.String(), err)
	}
	if tag == frameClose {
		return nil
	}
	return relabel(tag.String(), c.WriteInt32(pingSentinel))
}

// writeMessage writes a message frame. The caller flushes, and discards
// the codec's buffer when it fails.
func writeMessage[I, O any](c *Codec, t Translator[I, O], msg O) error {
	if err := c.WriteUint8(uint8(frameMessage)); err != nil {
		return relabel("message", err)
	}
	return t.Encode(msg, c)
}

// readFrameTag reads the next tag and consumes the body of control frames.
func readFrameTag(c *Codec) (frameTag, error) {
	v, err := c.ReadUint8()
	if err != nil {
		return 0, relabel("frame", err)
	}
	tag := frameTag(v)
	switch tag {
	case framePing, framePong:
		if _, err = c.ReadInt32(); err != nil {
			return tag, relabel(tag.String(), err)
		}
	case frameMessage, frameClose:
	default:
		return tag, &ReadError{Op: "frame", Err: errors.Wrapf(ErrUnknownFrame, "tag 0x%02x", v)}
	}
	return tag, nil
}

// encodeFrame encodes one message frame into memory so a failed encode
// never reaches the connection.
func encodeFrame[I, O any](t Translator[I, O], msg O) ([]byte, error) {
	var buf bytes.Buffer
	c := NewWriteCodec(&buf)
	if err := writeMessage(c, t, msg); err != nil {
		return nil, err
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeDatagram encodes one message frame that must fit in max bytes.
func encodeDatagram[I, O any](t Translator[I, O], msg O, max int) ([]byte, error) {
	data, err := encodeFrame(t, msg)
	if err != nil {
		return nil, err
	}
	if len(data) > max {
		return nil, &WriteError{Op: "datagram", Err: errors.Wrapf(ErrMessageTooLarge, "%d bytes, max %d", len(data), max)}
	}
	return data, nil
}

// controlDatagram returns the bytes of a ping, pong or close datagram.
func controlDatagram(tag frameTag) []byte {
	var buf bytes.Buffer
	c := NewWriteCodec(&buf)
	_ = writeControl(c, tag)
	_ = c.Flush()
	return buf.Bytes()
}

// splitDatagram reads the tag of one received datagram and returns the
// bytes that follow it. Control frames have no payload.
func splitDatagram(b []byte) (frameTag, []byte, error) {
	c := NewBytesCodec(b)
	tag, err := readFrameTag(c)
	if err != nil {
		return tag, nil, err
	}
	if tag != frameMessage {
		return tag, nil, nil
	}
	return tag, b[1:], nil
}

// decodeDatagram decodes a message payload with a codec scoped to that one
// datagram.
func decodeDatagram[I, O any](t Translator[I, O], payload []byte) (I, error) {
	return t.Decode(NewBytesCodec(payload))
}
