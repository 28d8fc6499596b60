package particle

// Translator converts between wire data and application messages.
// I is the inbound message type and O the outbound one. Applications
// implement it to define their own message format on top of the Codec
// primitives.
//
// Decode reads from a Codec, which lets it consume exactly the bytes of one
// message from a TCP stream. Over UDP the codec is bounded to a single
// datagram.
type Translator[I, O any] interface {
	// Decode reads one complete message. Failures should be *ReadError so a
	// read loop can tell malformed data from a closed transport.
	Decode(c *Codec) (I, error)
	// Encode writes one complete message. The caller flushes.
	Encode(msg O, c *Codec) error
}

// StringTranslator sends each message as one length-prefixed string.
type StringTranslator struct{}

var _ Translator[string, string] = StringTranslator{}

func (StringTranslator) Decode(c *Codec) (string, error) { return c.ReadString() }

func (StringTranslator) Encode(msg string, c *Codec) error { return c.WriteString(msg) }

// BytesTranslator sends raw byte runs with no length header. Decode takes
// the rest of the frame, so it only works where frames are bounded: over UDP
// or inside a Bounded codec.
type BytesTranslator struct{}

var _ Translator[[]byte, []byte] = BytesTranslator{}

func (BytesTranslator) Decode(c *Codec) ([]byte, error) { return c.ReadAll() }

func (BytesTranslator) Encode(msg []byte, c *Codec) error { return c.WriteBytes(msg) }
