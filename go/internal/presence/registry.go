package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type registryEntry struct {
	tracker     *Tracker
	refs        int
	unsubscribe func() error
}

// Registry owns one Tracker per room. The tracker and its channel
// subscription are created on the first Acquire and torn down on the last
// Release.
type Registry struct {
	transport Transport

	mu    sync.Mutex
	rooms map[uuid.UUID]*registryEntry
}

// NewRegistry creates a new Registry
func NewRegistry(transport Transport) *Registry {
	return &Registry{
		transport: transport,
		rooms:     make(map[uuid.UUID]*registryEntry),
	}
}

// Acquire returns the room's tracker, subscribing on first use
func (r *Registry) Acquire(ctx context.Context, roomID uuid.UUID) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.rooms[roomID]; ok {
		e.refs++
		return e.tracker, nil
	}

	t := newTracker(roomID, r.transport)
	unsubscribe, err := r.transport.Subscribe(ctx, roomID, t.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe to presence: %w", err)
	}
	r.rooms[roomID] = &registryEntry{tracker: t, refs: 1, unsubscribe: unsubscribe}

	log.Debug().Str("room_id", roomID.String()).Msg("presence tracker created")
	return t, nil
}

// Release drops one reference and reports whether the tracker was torn down
func (r *Registry) Release(roomID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[roomID]
	if !ok {
		return false, nil
	}
	e.refs--
	if e.refs > 0 {
		return false, nil
	}
	delete(r.rooms, roomID)

	log.Debug().Str("room_id", roomID.String()).Msg("presence tracker torn down")
	return true, e.unsubscribe()
}

// Rooms returns the number of live trackers
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
