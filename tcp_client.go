package particle

import (
	"context"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TCPClient is a client connection over one TCP stream.
type TCPClient[I, O any] struct {
	remote     Host
	translator Translator[I, O]
	handler    ClientHandler[I, O]
	opts       options
	logger     Logger

	state lifecycle
	conn  atomic.Pointer[tcpConn[I, O]]
}

var _ Client[string, string] = (*TCPClient[string, string])(nil)

// NewTCPClient creates an unconnected client for remote.
// Returns an error if the translator or handler is missing.
func NewTCPClient[I, O any](remote Host, translator Translator[I, O], handler ClientHandler[I, O], opt ...Option) (*TCPClient[I, O], error) {
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

	return &TCPClient[I, O]{
		remote:     remote,
		translator: translator,
		handler:    handler,
		opts:       opts,
		logger:     opts.logger,
	}, nil
}

// Connect dials the server, fires OnConnect, starts the keepalive and user
// tasks and then reads messages until the connection ends. It blocks for the
// whole life of the connection. Cancelling ctx disconnects the client.
//
// A client connects once; later calls fail with ErrAlreadyConnected.
// A failed dial leaves the client unconnected so Connect may be retried.
func (c *TCPClient[I, O]) Connect(ctx context.Context) error {
	if !c.state.transition(StateConnecting, StateUnconnected) {
		return &ConnectionError{Op: "connect", Host: c.remote, Err: ErrAlreadyConnected}
	}

	dialer := net.Dialer{Timeout: c.opts.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.remote.String())
	if err != nil {
		c.state.transition(StateUnconnected, StateConnecting)
		return &ConnectionError{Op: "connect", Host: c.remote, Err: err}
	}

	conn := newTCPConn(raw.(*net.TCPConn), c.translator)
	c.conn.Store(conn)
	c.state.transition(StateConnected, StateConnecting)
	c.logger.Info("connection established", "remote", c.remote)

	if err = invoke("OnConnect", func() error { return c.handler.OnConnect(c) }); err != nil {
		c.state.transition(StateDisconnected, StateConnected)
		_ = conn.disconnect()
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
		return c.readLoop(conn)
	})

	group.Go(func() error {
		select {
		case <-done:
			return nil
		case <-child.Done():
			_, _ = c.teardown()
			return child.Err()
		}
	})

	return group.Wait()
}

// readLoop dispatches messages in arrival order. A message that fails to
// decode is skipped; the loop ends only with the transport.
func (c *TCPClient[I, O]) readLoop(conn *tcpConn[I, O]) error {
	for conn.IsConnected() {
		msg, err := conn.receive()
		if err != nil {
			if !conn.IsConnected() {
				break
			}
			logSwallowed(c.logger, "read error", "remote", c.remote, "error", err)
			continue
		}

		if err = invoke("OnMessage", func() error { return c.handler.OnMessage(c, msg) }); err != nil {
			c.logger.Error("message callback failed", "remote", c.remote, "error", err)
		}
	}

	_, _ = c.teardown()
	return nil
}

// teardown moves a connected client to Disconnected, closes the transport
// and fires OnDisconnect. Only the first caller does anything.
func (c *TCPClient[I, O]) teardown() (bool, error) {
	if !c.state.transition(StateDisconnected, StateConnected) {
		return false, nil
	}

	err := c.conn.Load().disconnect()

	if cbErr := invoke("OnDisconnect", func() error { return c.handler.OnDisconnect(c) }); cbErr != nil {
		c.logger.Error("disconnect callback failed", "remote", c.remote, "error", cbErr)
	}
	c.logger.Info("connection closed", "remote", c.remote)
	return true, err
}

// Disconnect closes the connection and fires OnDisconnect. It may be called
// from any goroutine; the read loop notices and Connect returns.
func (c *TCPClient[I, O]) Disconnect() error {
	ok, err := c.teardown()
	if !ok {
		return &ConnectionError{Op: "disconnect", Host: c.remote, Err: ErrNotConnected}
	}
	if err != nil {
		return &ConnectionError{Op: "disconnect", Host: c.remote, Err: err}
	}
	return nil
}

// Ping writes a keepalive ping. A failed ping disconnects the client.
func (c *TCPClient[I, O]) Ping() error {
	conn := c.conn.Load()
	if conn == nil || c.state.get() != StateConnected {
		return &ConnectionError{Op: "ping", Host: c.remote, Err: ErrNotConnected}
	}

	if err := conn.ping(); err != nil {
		c.logger.Debug("ping failed", "remote", c.remote, "error", err)
		_, _ = c.teardown()
		return &ConnectionError{Op: "ping", Host: c.remote, Err: err}
	}
	return nil
}

// Send encodes msg and writes it to the server.
func (c *TCPClient[I, O]) Send(msg O) error {
	conn := c.conn.Load()
	if conn == nil || c.state.get() != StateConnected {
		return &ConnectionError{Op: "send", Host: c.remote, Err: ErrNotConnected}
	}

	if err := conn.send(msg); err != nil {
		return &ConnectionError{Op: "send", Host: c.remote, Err: err}
	}
	return nil
}

// IsConnected reports whether the client is connected and its transport is open.
func (c *TCPClient[I, O]) IsConnected() bool {
	conn := c.conn.Load()
	return conn != nil && c.state.get() == StateConnected && conn.IsConnected()
}

// State returns the lifecycle state.
func (c *TCPClient[I, O]) State() State {
	return c.state.get()
}

// RemoteHost returns the server address.
func (c *TCPClient[I, O]) RemoteHost() Host {
	return c.remote
}
