package particle

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// serverConn is a registered connection as its server sees it. TCP peers
// wrap an accepted socket; UDP peers are pseudo-connections fed by the
// server's shared receive loop.
type serverConn[I, O any] interface {
	Peer
	// receive blocks for the next message. Once the transport has ended it
	// returns an error and IsConnected reports false.
	receive() (I, error)
	send(msg O) error
	ping() error
	disconnect() error
}

// server holds what TCPServer and UDPServer share: the registry, the
// callbacks and the operations over registered connections.
type server[I, O any] struct {
	translator Translator[I, O]
	handler    ServerHandler[I]
	opts       options
	logger     Logger

	conns    *registry[serverConn[I, O]]
	dropping sync.Map // ids with a ForceDisconnect in progress
	handlers sync.WaitGroup
	running  atomic.Bool
}

func newServer[I, O any](translator Translator[I, O], handler ServerHandler[I], opt []Option) (*server[I, O], error) {
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

	return &server[I, O]{
		translator: translator,
		handler:    handler,
		opts:       opts,
		logger:     opts.logger,
		conns:      newRegistry[serverConn[I, O]](),
	}, nil
}

// start fires OnServerStart and schedules the keepalive sweep and the user
// tasks. A failing OnServerStart aborts the start.
func (s *server[I, O]) start(addr net.Addr) (*scheduler, error) {
	if err := invoke("OnServerStart", func() error { return s.handler.OnServerStart(addr) }); err != nil {
		return nil, &HostError{Op: "start", Err: err}
	}

	s.running.Store(true)

	sched := newScheduler(s.opts.poolSize, s.logger)
	if !s.opts.noKeepalive {
		sched.schedule(serverKeepalive(s, s.opts))
	}
	for _, task := range s.opts.tasks {
		sched.schedule(task)
	}
	return sched, nil
}

// shutdown stops the tasks, drops every remaining connection, waits for
// their handlers and fires OnServerStop.
func (s *server[I, O]) shutdown(sched *scheduler) {
	s.running.Store(false)
	sched.close()

	for _, id := range s.conns.ids() {
		if err := s.ForceDisconnect(id); err != nil && !errors.Is(err, ErrConnectionNotFound) {
			s.logger.Debug("disconnect on shutdown failed", "id", id, "error", err)
		}
	}
	s.handlers.Wait()

	if err := invoke("OnServerStop", s.handler.OnServerStop); err != nil {
		s.logger.Error("server stop callback failed", "error", err)
	}
}

// register stores conn and starts its handler. The registry owns conn from
// here on.
func (s *server[I, O]) register(conn serverConn[I, O]) uuid.UUID {
	id := s.conns.register(conn)
	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		newConnHandler(s, id, conn).run()
	}()
	return id
}

// ForceDisconnect drops a connection: it fires OnDisconnect, removes the
// connection from the registry and closes its transport. A failing
// OnDisconnect never prevents the cleanup. Concurrent calls for one id fire
// OnDisconnect once; the others fail with ErrConnectionNotFound.
func (s *server[I, O]) ForceDisconnect(id uuid.UUID) error {
	if _, busy := s.dropping.LoadOrStore(id, struct{}{}); busy {
		return &HostError{Op: "force disconnect", ID: id, Err: ErrConnectionNotFound}
	}
	defer s.dropping.Delete(id)

	conn, ok := s.conns.get(id)
	if !ok {
		return &HostError{Op: "force disconnect", ID: id, Err: ErrConnectionNotFound}
	}

	if err := invoke("OnDisconnect", func() error { return s.handler.OnDisconnect(id, conn) }); err != nil {
		logSwallowed(s.logger, "disconnect callback failed", "id", id, "error", err)
	}

	s.conns.unregister(id)

	if err := conn.disconnect(); err != nil {
		return &HostError{Op: "force disconnect", ID: id, Err: err}
	}
	return nil
}

// Ping sends a keepalive ping to one connection.
func (s *server[I, O]) Ping(id uuid.UUID) error {
	conn, ok := s.conns.get(id)
	if !ok {
		return &HostError{Op: "ping", ID: id, Err: ErrConnectionNotFound}
	}
	if err := conn.ping(); err != nil {
		return &HostError{Op: "ping", ID: id, Err: err}
	}
	return nil
}

// PingAll pings every registered connection and force-disconnects the ones
// whose ping fails. It works on a snapshot of the registry, so connections
// may come and go while it runs.
func (s *server[I, O]) PingAll() {
	for _, id := range s.conns.ids() {
		err := s.Ping(id)
		if err == nil || errors.Is(err, ErrConnectionNotFound) {
			continue
		}

		s.logger.Debug("ping failed", "id", id, "error", err)
		if err = s.ForceDisconnect(id); err != nil && !errors.Is(err, ErrConnectionNotFound) {
			logSwallowed(s.logger, "force disconnect failed", "id", id, "error", err)
		}
	}
}

// Send writes msg to one connection. Sending to an identifier that is not
// registered logs a warning and returns nil.
func (s *server[I, O]) Send(id uuid.UUID, msg O) error {
	conn, ok := s.conns.get(id)
	if !ok {
		s.logger.Warn("send to unknown connection", "id", id)
		return nil
	}
	if err := conn.send(msg); err != nil {
		return &HostError{Op: "send", ID: id, Err: err}
	}
	return nil
}

// Broadcast writes msg to every registered connection. A failure on one
// connection does not stop the others; failures are returned together as a
// *BroadcastError. Connections that disconnect during the broadcast are
// skipped.
func (s *server[I, O]) Broadcast(msg O) error {
	failed := make(map[uuid.UUID]error)
	for id, conn := range s.conns.snapshot() {
		err := conn.send(msg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNotConnected) {
			s.logger.Warn("broadcast to disconnected connection", "id", id)
			continue
		}
		failed[id] = err
	}

	if len(failed) > 0 {
		return &BroadcastError{Failed: failed}
	}
	return nil
}

// Client returns a registered connection.
func (s *server[I, O]) Client(id uuid.UUID) (Peer, bool) {
	conn, ok := s.conns.get(id)
	if !ok {
		return nil, false
	}
	return conn, true
}

// Clients returns a snapshot of the registered connections.
func (s *server[I, O]) Clients() map[uuid.UUID]Peer {
	conns := s.conns.snapshot()
	peers := make(map[uuid.UUID]Peer, len(conns))
	for id, conn := range conns {
		peers[id] = conn
	}
	return peers
}

// Len returns the number of registered connections.
func (s *server[I, O]) Len() int {
	return s.conns.len()
}

// IsRunning reports whether the server is serving.
func (s *server[I, O]) IsRunning() bool {
	return s.running.Load()
}
