package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notifier is a coalescing queue of changed room ids. A room that changes
// several times before the consumer catches up is delivered once; consumers
// always reload the latest record, so the intermediate states are not needed.
type Notifier struct {
	mu      sync.Mutex
	pending map[uuid.UUID]struct{}
	order   []uuid.UUID
	wake    chan struct{}
}

// NewNotifier creates an empty Notifier
func NewNotifier() *Notifier {
	return &Notifier{
		pending: make(map[uuid.UUID]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Notify marks roomID as changed. It never blocks.
func (n *Notifier) Notify(roomID uuid.UUID) {
	n.mu.Lock()
	if _, ok := n.pending[roomID]; !ok {
		n.pending[roomID] = struct{}{}
		n.order = append(n.order, roomID)
	}
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a changed room is available or ctx is done.
func (n *Notifier) Next(ctx context.Context) (uuid.UUID, error) {
	for {
		n.mu.Lock()
		if len(n.order) > 0 {
			id := n.order[0]
			n.order = n.order[1:]
			delete(n.pending, id)
			n.mu.Unlock()
			return id, nil
		}
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-n.wake:
		}
	}
}

// Pending returns the number of rooms waiting to be consumed.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.order)
}
