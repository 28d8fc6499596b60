package particle

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// UDPServer serves datagram clients from one socket. Each sender is tracked
// as a pseudo-connection with its own identifier and handler; the shared
// receive loop answers pings and queues messages to the sender's peer.
type UDPServer[I, O any] struct {
	*server[I, O]
	sock *net.UDPConn

	peersMu sync.Mutex
	peers   map[Host]*udpPeer[I, O]

	mu      sync.Mutex
	closing bool
}

// NewUDPServer creates a UDP server bound to addr ("host:port").
// Returns an error if the address cannot be bound.
func NewUDPServer[I, O any](addr string, translator Translator[I, O], handler ServerHandler[I], opt ...Option) (*UDPServer[I, O], error) {
	core, err := newServer(translator, handler, opt)
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &HostError{Op: "listen", Err: err}
	}

	sock, err := net.ListenUDP(udpAddr.Network(), udpAddr)
	if err != nil {
		return nil, &HostError{Op: "listen", Err: err}
	}

	return &UDPServer[I, O]{
		server: core,
		sock:   sock,
		peers:  make(map[Host]*udpPeer[I, O]),
	}, nil
}

// Serve fires OnServerStart, starts the keepalive sweep and receives
// datagrams until ctx is canceled or Stop is called. On the way out every
// remaining peer is force-disconnected, their handlers are drained and
// OnServerStop fires.
//
// Serve returns ctx.Err() after cancellation and ErrServerClosed after Stop.
func (s *UDPServer[I, O]) Serve(ctx context.Context) error {
	defer s.sock.Close()

	sched, err := s.start(s.sock.LocalAddr())
	if err != nil {
		return err
	}
	// Peers are dropped while the socket is still open so they get a close frame.
	defer s.shutdown(sched)

	s.logger.Info("server started", "addr", s.sock.LocalAddr())

	done := make(chan struct{})
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		select {
		case <-done:
		case <-child.Done():
			s.setClosing()
			_ = s.sock.SetReadDeadline(time.Now())
		}
		return nil
	})

	group.Go(func() error {
		defer close(done)
		return s.receiveLoop(ctx)
	})

	err = group.Wait()
	s.logger.Info("server stopped", "addr", s.sock.LocalAddr())
	return err
}

func (s *UDPServer[I, O]) receiveLoop(ctx context.Context) error {
	buf := make([]byte, s.opts.maxDatagramSize)

	for {
		n, addr, err := s.sock.ReadFromUDP(buf)
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
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("receive error", "error", err)
				return &HostError{Op: "receive", Err: err}
			}
			logSwallowed(s.logger, "receive error", "error", err)
			continue
		}

		s.dispatch(buf[:n], addr)
	}
}

// dispatch routes one datagram. It never blocks on a peer's handler.
func (s *UDPServer[I, O]) dispatch(b []byte, addr *net.UDPAddr) {
	host := HostFromAddr(addr)

	tag, payload, err := splitDatagram(b)
	if err != nil {
		logSwallowed(s.logger, "malformed datagram", "remote", host, "error", err)
		return
	}

	switch tag {
	case framePing:
		s.peer(host, addr, true).touch()
		if _, err = s.sock.WriteToUDP(controlDatagram(framePong), addr); err != nil {
			logSwallowed(s.logger, "pong failed", "remote", host, "error", err)
		}

	case framePong:
		if p := s.peer(host, addr, false); p != nil {
			p.touch()
		}

	case frameClose:
		if p := s.peer(host, addr, false); p != nil {
			s.logger.Debug("client closed the connection", "remote", host)
			p.close(false)
		}

	case frameMessage:
		p := s.peer(host, addr, true)
		p.touch()
		p.enqueue(append([]byte(nil), payload...), s.logger)
	}
}

// peer returns the live peer for host, creating and registering it when
// create is set.
func (s *UDPServer[I, O]) peer(host Host, addr *net.UDPAddr, create bool) *udpPeer[I, O] {
	s.peersMu.Lock()
	p, ok := s.peers[host]
	if ok || !create {
		s.peersMu.Unlock()
		return p
	}

	p = newUDPPeer(s, host, addr)
	s.peers[host] = p
	s.peersMu.Unlock()

	s.register(p)
	return p
}

func (s *UDPServer[I, O]) forget(p *udpPeer[I, O]) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	if s.peers[p.remote] == p {
		delete(s.peers, p.remote)
	}
}

func (s *UDPServer[I, O]) setClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *UDPServer[I, O]) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Stop unblocks the receive loop. A running Serve drops every peer, closes
// the socket and returns ErrServerClosed. A server that is not serving
// closes its socket right away.
func (s *UDPServer[I, O]) Stop() error {
	s.setClosing()
	if !s.IsRunning() {
		if err := s.sock.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return &HostError{Op: "stop", Err: err}
		}
		return nil
	}
	if err := s.sock.SetReadDeadline(time.Now()); err != nil && !errors.Is(err, net.ErrClosed) {
		return &HostError{Op: "stop", Err: err}
	}
	return nil
}

// Addr returns the socket's network address.
func (s *UDPServer[I, O]) Addr() net.Addr {
	return s.sock.LocalAddr()
}

// udpPeer is a server-side pseudo-connection. It shares the server socket;
// its inbox holds the message payloads received from its sender in arrival
// order.
type udpPeer[I, O any] struct {
	owner  *UDPServer[I, O]
	addr   *net.UDPAddr
	remote Host

	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64 // unix nanoseconds
}

func newUDPPeer[I, O any](owner *UDPServer[I, O], remote Host, addr *net.UDPAddr) *udpPeer[I, O] {
	p := &udpPeer[I, O]{
		owner:  owner,
		addr:   addr,
		remote: remote,
		inbox:  make(chan []byte, owner.opts.inboxSize),
		done:   make(chan struct{}),
	}
	p.touch()
	return p
}

func (p *udpPeer[I, O]) RemoteHost() Host {
	return p.remote
}

func (p *udpPeer[I, O]) IsConnected() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *udpPeer[I, O]) touch() {
	p.lastSeen.Store(time.Now().UnixNano())
}

// enqueue hands a payload to the peer's handler, dropping it when the inbox
// is full.
func (p *udpPeer[I, O]) enqueue(payload []byte, logger Logger) {
	select {
	case p.inbox <- payload:
	case <-p.done:
	default:
		logger.Warn("peer inbox full, datagram dropped", "remote", p.remote)
	}
}

// receive returns queued payloads in order. Payloads that arrived before the
// peer closed are still delivered.
func (p *udpPeer[I, O]) receive() (I, error) {
	var zero I

	select {
	case payload := <-p.inbox:
		return decodeDatagram(p.owner.translator, payload)
	case <-p.done:
	}

	select {
	case payload := <-p.inbox:
		return decodeDatagram(p.owner.translator, payload)
	default:
		return zero, &ReadError{Op: "receive", Err: net.ErrClosed}
	}
}

func (p *udpPeer[I, O]) send(msg O) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := encodeDatagram(p.owner.translator, msg, p.owner.opts.maxDatagramSize)
	if err != nil {
		return err
	}
	_, err = p.owner.sock.WriteToUDP(data, p.addr)
	return err
}

// ping fails with ErrPingTimeout once the sender has been silent longer
// than the peer timeout.
func (p *udpPeer[I, O]) ping() error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	silence := time.Since(time.Unix(0, p.lastSeen.Load()))
	if silence > p.owner.opts.peerTimeout {
		return errors.Wrapf(ErrPingTimeout, "silent for %s", silence)
	}

	_, err := p.owner.sock.WriteToUDP(controlDatagram(framePing), p.addr)
	return err
}

func (p *udpPeer[I, O]) disconnect() error {
	return p.close(true)
}

// close ends the peer once. With notify set the client is sent a close
// frame so it disconnects too.
func (p *udpPeer[I, O]) close(notify bool) error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.owner.forget(p)
		if notify {
			_, err = p.owner.sock.WriteToUDP(controlDatagram(frameClose), p.addr)
		}
	})
	return err
}
