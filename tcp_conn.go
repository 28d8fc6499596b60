package particle

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// tcpConn is the stream transport shared by dialed clients and accepted
// server peers. One goroutine reads; writers are serialized by writeMu so a
// keepalive ping never interleaves with a message.
type tcpConn[I, O any] struct {
	raw        *net.TCPConn
	codec      *Codec
	translator Translator[I, O]
	remote     Host

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newTCPConn[I, O any](raw *net.TCPConn, translator Translator[I, O]) *tcpConn[I, O] {
	_ = raw.SetNoDelay(true)
	return &tcpConn[I, O]{
		raw:        raw,
		codec:      NewCodec(raw),
		translator: translator,
		remote:     HostFromAddr(raw.RemoteAddr()),
	}
}

func (c *tcpConn[I, O]) RemoteHost() Host {
	return c.remote
}

func (c *tcpConn[I, O]) IsConnected() bool {
	return !c.closed.Load()
}

// receive reads frames until a message arrives. Ping frames are consumed
// silently. An error that leaves the stream unusable closes the connection.
func (c *tcpConn[I, O]) receive() (I, error) {
	var zero I
	for {
		tag, err := readFrameTag(c.codec)
		if err != nil {
			return zero, c.checkClosed(err)
		}

		switch tag {
		case framePing, framePong:
			continue
		case frameClose:
			_ = c.disconnect()
			return zero, &ReadError{Op: "frame", Err: io.EOF}
		}

		msg, err := c.translator.Decode(c.codec)
		if err != nil {
			return zero, c.checkClosed(err)
		}
		return msg, nil
	}
}

// checkClosed closes the connection when err means the stream is gone.
// Malformed data leaves it open.
func (c *tcpConn[I, O]) checkClosed(err error) error {
	if isTransportClosed(err) {
		_ = c.disconnect()
	}
	return err
}

// send encodes msg before taking the write lock, so a message that fails to
// encode leaves nothing behind in the stream.
func (c *tcpConn[I, O]) send(msg O) error {
	frame, err := encodeFrame(c.translator, msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrNotConnected
	}
	if err = c.codec.WriteBytes(frame); err != nil {
		return err
	}
	return c.codec.Flush()
}

func (c *tcpConn[I, O]) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrNotConnected
	}
	if err := writeControl(c.codec, framePing); err != nil {
		return err
	}
	return c.codec.Flush()
}

// disconnect closes the socket. Only the first call has an effect.
func (c *tcpConn[I, O]) disconnect() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.raw.Close()
}

// isTransportClosed reports whether err comes from a stream that ended or a
// socket that failed, as opposed to bytes that did not parse.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
