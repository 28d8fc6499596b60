package particle

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// UDPClient is a client connection emulated over datagrams. The connection
// exists once the server has answered a ping; liveness afterwards is judged
// by how long the server has been silent.
type UDPClient[I, O any] struct {
	remote     Host
	translator Translator[I, O]
	handler    ClientHandler[I, O]
	opts       options
	logger     Logger

	state    lifecycle
	sock     atomic.Pointer[net.UDPConn]
	lastSeen atomic.Int64 // unix nanoseconds
}

var _ Client[string, string] = (*UDPClient[string, string])(nil)

// NewUDPClient creates an unconnected client for remote.
// Returns an error if the translator or handler is missing.
func NewUDPClient[I, O any](remote Host, translator Translator[I, O], handler ClientHandler[I, O], opt ...Option) (*UDPClient[I, O], error) {
	if translator == nil {
		return nil, ErrInvalidTranslator
	}
	if handler == nil {
		return nil, ErrInvalidHandler
	}

	opts, err := newOptions(opt)
	if err != nil {
		return nil, err
	}

	return &UDPClient[I, O]{
		remote:     remote,
		translator: translator,
		handler:    handler,
		opts:       opts,
		logger:     opts.logger,
	}, nil
}

// Connect opens a datagram socket to the server, pings it and waits for the
// pong. It then fires OnConnect, starts the keepalive and user tasks and
// receives datagrams until the connection ends. It blocks for the whole life
// of the connection. Cancelling ctx disconnects the client.
//
// Without a pong within the handshake timeout Connect fails with
// ErrHandshakeFailed and the client is left unconnected. When OnConnect fails
// the server is sent a close frame and OnDisconnect does not fire.
func (c *UDPClient[I, O]) Connect(ctx context.Context) error {
	if !c.state.transition(StateHandshake, StateUnconnected) {
		return &ConnectionError{Op: "connect", Host: c.remote, Err: ErrAlreadyConnected}
	}

	sock, err := c.dial(ctx)
	if err != nil {
		c.state.transition(StateUnconnected, StateHandshake)
		return &ConnectionError{Op: "connect", Host: c.remote, Err: err}
	}

	c.sock.Store(sock)
	c.touch()
	c.state.transition(StateConnected, StateHandshake)
	c.logger.Info("connection established", "remote", c.remote)

	if err = invoke("OnConnect", func() error { return c.handler.OnConnect(c) }); err != nil {
		c.state.transition(StateDisconnected, StateConnected)
		_, _ = sock.Write(controlDatagram(frameClose))
		_ = sock.Close()
		return &ConnectionError{Op: "connect", Host: c.remote, Err: err}
	}

	sched := newScheduler(c.opts.poolSize, c.logger)
	defer sched.close()
	if !c.opts.noKeepalive {
		sched.schedule(clientKeepalive(c, c.opts))
	}
	for _, task := range c.opts.tasks {
		sched.schedule(task)
	}

	done := make(chan struct{})
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(done)
		return c.readLoop(sock)
	})

	group.Go(func() error {
		select {
		case <-done:
			return nil
		case <-child.Done():
			_, _ = c.teardown(true)
			return child.Err()
		}
	})

	return group.Wait()
}

// dial opens the socket and runs the ping handshake.
func (c *UDPClient[I, O]) dial(ctx context.Context) (*net.UDPConn, error) {
	addr, err := c.remote.UDPAddr()
	if err != nil {
		return nil, err
	}

	sock, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}

	if err = c.handshake(ctx, sock); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return sock, nil
}

func (c *UDPClient[I, O]) handshake(ctx context.Context, sock *net.UDPConn) error {
	if err := sock.SetReadDeadline(time.Now().Add(c.opts.handshakeTimeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = sock.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := sock.Write(controlDatagram(framePing)); err != nil {
		return errors.Wrap(ErrHandshakeFailed, err.Error())
	}

	buf := make([]byte, c.opts.maxDatagramSize)
	for {
		n, err := sock.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(ErrHandshakeFailed, err.Error())
		}

		tag, _, err := splitDatagram(buf[:n])
		if err != nil {
			logSwallowed(c.logger, "handshake read error", "remote", c.remote, "error", err)
			continue
		}
		if tag == framePong {
			return sock.SetReadDeadline(time.Time{})
		}
	}
}

// readLoop handles one datagram per read. Control frames are answered here
// and never reach OnMessage.
func (c *UDPClient[I, O]) readLoop(sock *net.UDPConn) error {
	buf := make([]byte, c.opts.maxDatagramSize)

	for c.IsConnected() {
		n, err := sock.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !c.IsConnected() {
				break
			}
			logSwallowed(c.logger, "read error", "remote", c.remote, "error", err)
			continue
		}
		c.touch()

		tag, payload, err := splitDatagram(buf[:n])
		if err != nil {
			logSwallowed(c.logger, "read error", "remote", c.remote, "error", err)
			continue
		}

		switch tag {
		case framePing:
			if _, err = sock.Write(controlDatagram(framePong)); err != nil {
				logSwallowed(c.logger, "pong failed", "remote", c.remote, "error", err)
			}
			continue
		case framePong:
			continue
		case frameClose:
			c.logger.Debug("server closed the connection", "remote", c.remote)
			_, _ = c.teardown(false)
			return nil
		}

		msg, err := decodeDatagram(c.translator, payload)
		if err != nil {
			logSwallowed(c.logger, "decode error", "remote", c.remote, "error", err)
			continue
		}

		if err = invoke("OnMessage", func() error { return c.handler.OnMessage(c, msg) }); err != nil {
			c.logger.Error("message callback failed", "remote", c.remote, "error", err)
		}
	}

	_, _ = c.teardown(false)
	return nil
}

func (c *UDPClient[I, O]) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *UDPClient[I, O]) silence() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

// teardown moves a connected client to Disconnected, tells the server when
// notify is set, closes the socket and fires OnDisconnect. Only the first
// caller does anything.
func (c *UDPClient[I, O]) teardown(notify bool) (bool, error) {
	if !c.state.transition(StateDisconnected, StateConnected) {
		return false, nil
	}

	sock := c.sock.Load()
	if notify {
		_, _ = sock.Write(controlDatagram(frameClose))
	}
	err := sock.Close()

	if cbErr := invoke("OnDisconnect", func() error { return c.handler.OnDisconnect(c) }); cbErr != nil {
		c.logger.Error("disconnect callback failed", "remote", c.remote, "error", cbErr)
	}
	c.logger.Info("connection closed", "remote", c.remote)
	return true, err
}

// Disconnect tells the server the client is leaving, closes the socket and
// fires OnDisconnect.
func (c *UDPClient[I, O]) Disconnect() error {
	ok, err := c.teardown(true)
	if !ok {
		return &ConnectionError{Op: "disconnect", Host: c.remote, Err: ErrNotConnected}
	}
	if err != nil {
		return &ConnectionError{Op: "disconnect", Host: c.remote, Err: err}
	}
	return nil
}

// Ping sends a ping datagram. It fails with ErrPingTimeout, and disconnects
// the client, when the server has been silent longer than the peer timeout.
func (c *UDPClient[I, O]) Ping() error {
	sock := c.sock.Load()
	if sock == nil || c.state.get() != StateConnected {
		return &ConnectionError{Op: "ping", Host: c.remote, Err: ErrNotConnected}
	}

	if silence := c.silence(); silence > c.opts.peerTimeout {
		c.logger.Debug("server silent", "remote", c.remote, "silence", silence)
		_, _ = c.teardown(true)
		return &ConnectionError{Op: "ping", Host: c.remote, Err: ErrPingTimeout}
	}

	if _, err := sock.Write(controlDatagram(framePing)); err != nil {
		_, _ = c.teardown(false)
		return &ConnectionError{Op: "ping", Host: c.remote, Err: err}
	}
	return nil
}

// Send encodes msg into a single datagram and sends it. A message that does
// not fit the maximum datagram size fails with ErrMessageTooLarge.
func (c *UDPClient[I, O]) Send(msg O) error {
	sock := c.sock.Load()
	if sock == nil || c.state.get() != StateConnected {
		return &ConnectionError{Op: "send", Host: c.remote, Err: ErrNotConnected}
	}

	data, err := encodeDatagram(c.translator, msg, c.opts.maxDatagramSize)
	if err != nil {
		return &ConnectionError{Op: "send", Host: c.remote, Err: err}
	}
	if _, err = sock.Write(data); err != nil {
		return &ConnectionError{Op: "send", Host: c.remote, Err: err}
	}
	return nil
}

// IsConnected reports whether the handshake succeeded and the client has not
// disconnected since.
func (c *UDPClient[I, O]) IsConnected() bool {
	return c.state.get() == StateConnected
}

// State returns the lifecycle state.
func (c *UDPClient[I, O]) State() State {
	return c.state.get()
}

// RemoteHost returns the server address.
func (c *UDPClient[I, O]) RemoteHost() Host {
	return c.remote
}
