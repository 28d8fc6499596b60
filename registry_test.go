package particle

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConcurrentRegisterUnique(t *testing.T) {
	r := newRegistry[int]()

	const workers, perWorker = 8, 200
	ids := make(chan uuid.UUID, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- r.register(w*perWorker + i)
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uuid.UUID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, r.len())
}

func TestRegistry_RedrawsCollidingIDs(t *testing.T) {
	r := newRegistry[string]()

	fixed := uuid.MustParse("5d0a8e6c-3b1f-4b8a-9a53-0f6c2f9d7e11")
	other := uuid.MustParse("9b2c1f4e-6a7d-4c3e-8f10-2d4b6a8c0e13")
	draws := []uuid.UUID{fixed, uuid.Nil, fixed, other}
	r.newID = func() uuid.UUID {
		id := draws[0]
		draws = draws[1:]
		return id
	}

	assert.Equal(t, fixed, r.register("first"))
	assert.Equal(t, other, r.register("second"), "nil and taken ids are skipped")
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := newRegistry[string]()
	id := r.register("conn")

	got, ok := r.get(id)
	require.True(t, ok)
	assert.Equal(t, "conn", got)

	snap := r.snapshot()
	got, ok = r.unregister(id)
	require.True(t, ok)
	assert.Equal(t, "conn", got)

	_, ok = r.unregister(id)
	assert.False(t, ok)
	_, ok = r.get(id)
	assert.False(t, ok)

	assert.Len(t, snap, 1, "snapshots are copies")
	assert.Empty(t, r.ids())
}
