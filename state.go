package particle

import "sync"

// State is the lifecycle state of a client connection.
//
// TCP clients move Unconnected → Connecting → Connected → Disconnected.
// UDP clients move Unconnected → Handshake → Connected → Disconnected.
// A failed dial or handshake returns to Unconnected; Disconnected is terminal.
type State int32

const (
	StateUnconnected State = iota
	StateConnecting
	StateHandshake
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "invalid"
}

// lifecycle guards a State so that each transition is taken by exactly one
// caller.
type lifecycle struct {
	mu    sync.Mutex
	state State
}

// transition moves to `to` if the current state is one of from.
func (l *lifecycle) transition(to State, from ...State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range from {
		if l.state == s {
			l.state = to
			return true
		}
	}
	return false
}

func (l *lifecycle) get() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
