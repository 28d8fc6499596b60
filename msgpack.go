package particle

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// defaultMaxPayloadSize is the default maximum size of a single msgpack payload (1MB).
const defaultMaxPayloadSize = 1024 * 1024

// MsgpackTranslator encodes messages as msgpack documents behind a 4-byte
// length header. The payload is parsed from a bounded codec so a bad document
// can never consume bytes of the next message.
type MsgpackTranslator[I, O any] struct {
	// MaxSize bounds one payload. Zero means 1MB.
	MaxSize int
}

func (t MsgpackTranslator[I, O]) maxSize() int {
	if t.MaxSize <= 0 {
		return defaultMaxPayloadSize
	}
	return t.MaxSize
}

func (t MsgpackTranslator[I, O]) Decode(c *Codec) (I, error) {
	var msg I

	n, err := c.ReadInt32()
	if err != nil {
		return msg, relabel("msgpack", err)
	}
	if n < 0 || int(n) > t.maxSize() {
		return msg, &ReadError{Op: "msgpack", Err: errors.Wrapf(ErrMessageTooLarge, "payload of %d bytes", n)}
	}

	payload, err := c.Bounded(int(n))
	if err != nil {
		return msg, relabel("msgpack", err)
	}
	data, err := payload.ReadAll()
	if err != nil {
		return msg, relabel("msgpack", err)
	}

	if err = msgpack.Unmarshal(data, &msg); err != nil {
		return msg, &ReadError{Op: "msgpack", Err: err}
	}
	return msg, nil
}

func (t MsgpackTranslator[I, O]) Encode(msg O, c *Codec) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return &WriteError{Op: "msgpack", Err: err}
	}
	if len(data) > t.maxSize() {
		return &WriteError{Op: "msgpack", Err: errors.Wrapf(ErrMessageTooLarge, "payload of %d bytes", len(data))}
	}

	if err = c.WriteInt32(int32(len(data))); err != nil {
		return relabel("msgpack", err)
	}
	return relabel("msgpack", c.WriteBytes(data))
}
