package particle

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Peer is a connection registered with a server.
type Peer interface {
	// RemoteHost returns the address of the remote end.
	RemoteHost() Host
	// IsConnected reports whether the connection is still usable.
	IsConnected() bool
}

// Client is the surface shared by TCPClient and UDPClient.
type Client[I, O any] interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Ping() error
	Send(msg O) error
	IsConnected() bool
	State() State
	RemoteHost() Host
}

// ClientHandler receives the lifecycle events of a client. A returned error
// is logged; an error from OnConnect aborts the connect.
//
// OnDisconnect fires once for every connect whose OnConnect succeeded. A
// connect aborted by OnConnect closes the transport without OnDisconnect.
type ClientHandler[I, O any] interface {
	OnConnect(c Client[I, O]) error
	OnMessage(c Client[I, O], msg I) error
	OnDisconnect(c Client[I, O]) error
}

// ServerHandler receives the lifecycle events of a server and its
// connections. A returned error is logged and never stops the server, except
// from OnServerStart, which aborts Serve.
//
// OnDisconnect fires when the server drops a connection on its own
// (ForceDisconnect, failed keepalive). OnConnectionEnd fires exactly once for
// every connection, when its read loop has ended for any reason.
type ServerHandler[I any] interface {
	OnServerStart(addr net.Addr) error
	OnConnect(id uuid.UUID, peer Peer) error
	OnMessage(id uuid.UUID, msg I) error
	OnDisconnect(id uuid.UUID, peer Peer) error
	OnConnectionEnd(id uuid.UUID, peer Peer) error
	OnServerStop() error
}

// ClientHandlerFuncs implements ClientHandler with optional functions.
// Nil fields are no-ops.
type ClientHandlerFuncs[I, O any] struct {
	Connect    func(c Client[I, O]) error
	Message    func(c Client[I, O], msg I) error
	Disconnect func(c Client[I, O]) error
}

var _ ClientHandler[string, string] = ClientHandlerFuncs[string, string]{}

func (h ClientHandlerFuncs[I, O]) OnConnect(c Client[I, O]) error {
	if h.Connect == nil {
		return nil
	}
	return h.Connect(c)
}

func (h ClientHandlerFuncs[I, O]) OnMessage(c Client[I, O], msg I) error {
	if h.Message == nil {
		return nil
	}
	return h.Message(c, msg)
}

func (h ClientHandlerFuncs[I, O]) OnDisconnect(c Client[I, O]) error {
	if h.Disconnect == nil {
		return nil
	}
	return h.Disconnect(c)
}

// ServerHandlerFuncs implements ServerHandler with optional functions.
// Nil fields are no-ops.
type ServerHandlerFuncs[I any] struct {
	ServerStart   func(addr net.Addr) error
	Connect       func(id uuid.UUID, peer Peer) error
	Message       func(id uuid.UUID, msg I) error
	Disconnect    func(id uuid.UUID, peer Peer) error
	ConnectionEnd func(id uuid.UUID, peer Peer) error
	ServerStop    func() error
}

var _ ServerHandler[string] = ServerHandlerFuncs[string]{}

func (h ServerHandlerFuncs[I]) OnServerStart(addr net.Addr) error {
	if h.ServerStart == nil {
		return nil
	}
	return h.ServerStart(addr)
}

func (h ServerHandlerFuncs[I]) OnConnect(id uuid.UUID, peer Peer) error {
	if h.Connect == nil {
		return nil
	}
	return h.Connect(id, peer)
}

func (h ServerHandlerFuncs[I]) OnMessage(id uuid.UUID, msg I) error {
	if h.Message == nil {
		return nil
	}
	return h.Message(id, msg)
}

func (h ServerHandlerFuncs[I]) OnDisconnect(id uuid.UUID, peer Peer) error {
	if h.Disconnect == nil {
		return nil
	}
	return h.Disconnect(id, peer)
}

func (h ServerHandlerFuncs[I]) OnConnectionEnd(id uuid.UUID, peer Peer) error {
	if h.ConnectionEnd == nil {
		return nil
	}
	return h.ConnectionEnd(id, peer)
}

func (h ServerHandlerFuncs[I]) OnServerStop() error {
	if h.ServerStop == nil {
		return nil
	}
	return h.ServerStop()
}

// invoke runs a callback, turning a panic into an error.
func invoke(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
