package particle

import (
	"sync"

	"github.com/google/uuid"
)

// registry maps connection identifiers to connections. It is shared by the
// accept/receive loop, every connection handler and the keepalive sweep.
type registry[C any] struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]C

	newID func() uuid.UUID
}

func newRegistry[C any]() *registry[C] {
	return &registry[C]{
		conns: make(map[uuid.UUID]C),
		newID: uuid.New,
	}
}

// register stores c under a fresh identifier that collides with no
// registered one.
func (r *registry[C]) register(c C) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, ok := r.conns[id]; !ok && id != uuid.Nil {
			break
		}
		id = r.newID()
	}
	r.conns[id] = c
	return id
}

// unregister removes id. ok is false if id was not registered.
func (r *registry[C]) unregister(id uuid.UUID) (c C, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok = r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return c, ok
}

func (r *registry[C]) get(id uuid.UUID) (c C, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok = r.conns[id]
	return c, ok
}

// ids returns a snapshot of the registered identifiers.
func (r *registry[C]) ids() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// snapshot returns a copy of the registry.
func (r *registry[C]) snapshot() map[uuid.UUID]C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[uuid.UUID]C, len(r.conns))
	for id, c := range r.conns {
		m[id] = c
	}
	return m
}

func (r *registry[C]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
