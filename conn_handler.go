package particle

import (
	"fmt"

	"github.com/google/uuid"
)

// connHandler drives one registered connection: it reads messages in
// arrival order and dispatches them to the server's handler until the
// connection ends.
type connHandler[I, O any] struct {
	server *server[I, O]
	id     uuid.UUID
	conn   serverConn[I, O]
}

func newConnHandler[I, O any](s *server[I, O], id uuid.UUID, conn serverConn[I, O]) *connHandler[I, O] {
	return &connHandler[I, O]{server: s, id: id, conn: conn}
}

func (h *connHandler[I, O]) run() {
	s := h.server
	defer h.end()

	s.logger.Debug("connection registered", "id", h.id, "remote", h.conn.RemoteHost())

	if err := invoke("OnConnect", func() error { return s.handler.OnConnect(h.id, h.conn) }); err != nil {
		s.logger.Error("connect callback failed", "id", h.id, "error", err)
	}

	for {
		msg, err := h.conn.receive()
		if err != nil {
			if !h.conn.IsConnected() {
				break
			}
			logSwallowed(s.logger, "read error", "id", h.id, "error", err)
			continue
		}

		if err = invoke("OnMessage", func() error { return s.handler.OnMessage(h.id, msg) }); err != nil {
			s.logger.Error("message callback failed", "id", h.id, "error", err)
		}
	}
}

// end runs once per handler however the loop stopped. The registry entry
// may already be gone after a force disconnect; OnConnectionEnd fires either
// way.
func (h *connHandler[I, O]) end() {
	s := h.server

	if r := recover(); r != nil {
		s.logger.Error("connection handler panicked", "id", h.id, "panic", fmt.Sprint(r))
	}

	if h.conn.IsConnected() {
		if err := h.conn.disconnect(); err != nil {
			logSwallowed(s.logger, "disconnect failed", "id", h.id, "error", err)
		}
	}
	s.conns.unregister(h.id)

	if err := invoke("OnConnectionEnd", func() error { return s.handler.OnConnectionEnd(h.id, h.conn) }); err != nil {
		s.logger.Error("connection end callback failed", "id", h.id, "error", err)
	}

	s.logger.Debug("connection ended", "id", h.id, "remote", h.conn.RemoteHost())
}
