package particle

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// TCPServer accepts TCP connections, registers each one under a fresh
// identifier and dispatches its messages to a ServerHandler.
type TCPServer[I, O any] struct {
	*server[I, O]
	listener *net.TCPListener

	mu      sync.Mutex
	closing bool
}

// NewTCPServer creates a TCP server bound to addr ("host:port").
// Returns an error if the address cannot be bound.
func NewTCPServer[I, O any](addr string, translator Translator[I, O], handler ServerHandler[I], opt ...Option) (*TCPServer[I, O], error) {
	core, err := newServer(translator, handler, opt)
	if err != nil {
		return nil, err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, &HostError{Op: "listen", Err: err}
	}

	listener, err := net.ListenTCP(tcpAddr.Network(), tcpAddr)
	if err != nil {
		return nil, &HostError{Op: "listen", Err: err}
	}

	return &TCPServer[I, O]{
		server:   core,
		listener: listener,
	}, nil
}

// Serve fires OnServerStart, starts the keepalive sweep and accepts
// connections until ctx is canceled or Stop is called. On the way out every
// remaining connection is force-disconnected, their handlers are drained and
// OnServerStop fires.
//
// Serve returns ctx.Err() after cancellation and ErrServerClosed after Stop.
func (s *TCPServer[I, O]) Serve(ctx context.Context) error {
	defer s.listener.Close()

	sched, err := s.start(s.listener.Addr())
	if err != nil {
		return err
	}
	defer s.shutdown(sched)

	s.logger.Info("server started", "addr", s.listener.Addr())

	done := make(chan struct{})
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		select {
		case <-done:
		case <-child.Done():
			s.setClosing()
			// Set a deadline to unblock Accept
			_ = s.listener.SetDeadline(time.Now())
		}
		return nil
	})

	group.Go(func() error {
		defer close(done)
		return s.acceptLoop(ctx)
	})

	err = group.Wait()
	s.logger.Info("server stopped", "addr", s.listener.Addr())
	return err
}

func (s *TCPServer[I, O]) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isClosing() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrServerClosed
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return &HostError{Op: "accept", Err: err}
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		s.register(newTCPConn(conn, s.translator))
	}
}

func (s *TCPServer[I, O]) setClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *TCPServer[I, O]) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Stop closes the listener. A running Serve stops accepting, shuts the
// server down and returns ErrServerClosed.
func (s *TCPServer[I, O]) Stop() error {
	s.setClosing()
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return &HostError{Op: "stop", Err: err}
	}
	return nil
}

// Addr returns the listener's network address.
func (s *TCPServer[I, O]) Addr() net.Addr {
	return s.listener.Addr()
}
