package particle

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Host addresses a peer by address and port without holding a socket.
// It identifies the sender of a datagram before any connection exists.
type Host struct {
	Address string
	Port    int
}

// HostFromAddr converts a TCP or UDP address into a Host.
func HostFromAddr(addr net.Addr) Host {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return Host{Address: a.IP.String(), Port: a.Port}
	case *net.TCPAddr:
		return Host{Address: a.IP.String(), Port: a.Port}
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Host{Address: addr.String()}
	}
	p, _ := strconv.Atoi(port)
	return Host{Address: host, Port: p}
}

// ParseHost parses "address:port".
func ParseHost(s string) (Host, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Host{}, errors.Wrapf(err, "parse host %q", s)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return Host{}, errors.Errorf("parse host %q: invalid port", s)
	}
	return Host{Address: host, Port: p}, nil
}

// String returns "address:port".
func (h Host) String() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// UDPAddr resolves the host for datagram use.
func (h Host) UDPAddr() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", h.String())
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", h)
	}
	return addr, nil
}
