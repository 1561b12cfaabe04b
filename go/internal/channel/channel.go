// Package channel carries authoritative room snapshots from the store to
// every subscriber of a room.
package channel

import (
	"context"
	"sync"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

// DefaultBufferSize is how many undelivered snapshots a subscription keeps
// before dropping the oldest.
const DefaultBufferSize = 16

// Channel is the group communication channel of the game.
type Channel interface {
	Publish(ctx context.Context, snap models.RoomSnapshot) error
	Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error)
}

// Subscription delivers snapshots of one room. Delivery is at-least-once and
// latest-wins: a slow reader loses intermediate snapshots, never the newest.
type Subscription interface {
	C() <-chan models.RoomSnapshot
	Close() error
}

// mailbox is a bounded latest-wins queue shared by the implementations.
type mailbox struct {
	mu     sync.Mutex
	ch     chan models.RoomSnapshot
	closed bool
}

func newMailbox(size int) *mailbox {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &mailbox{ch: make(chan models.RoomSnapshot, size)}
}

func (m *mailbox) offer(snap models.RoomSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for {
		select {
		case m.ch <- snap:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

func (m *mailbox) close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.closed = true
	close(m.ch)
	return true
}
