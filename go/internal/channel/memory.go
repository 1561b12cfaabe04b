package channel

import (
	"context"
	"sync"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Channel. New subscribers first receive the last
// snapshot published for the room, like a last-per-subject stream.
type Memory struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]map[*memorySub]struct{}
	last       map[uuid.UUID]models.RoomSnapshot
	bufferSize int
}

// NewMemory creates an empty Memory channel
func NewMemory(bufferSize int) *Memory {
	return &Memory{
		subs:       make(map[uuid.UUID]map[*memorySub]struct{}),
		last:       make(map[uuid.UUID]models.RoomSnapshot),
		bufferSize: bufferSize,
	}
}

func (m *Memory) Publish(ctx context.Context, snap models.RoomSnapshot) error {
	roomID := snap.Room.ID

	m.mu.Lock()
	m.last[roomID] = snap
	subs := make([]*memorySub, 0, len(m.subs[roomID]))
	for s := range m.subs[roomID] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.box.offer(snap)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error) {
	s := &memorySub{hub: m, roomID: roomID, box: newMailbox(m.bufferSize)}

	m.mu.Lock()
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[*memorySub]struct{})
	}
	m.subs[roomID][s] = struct{}{}
	last, ok := m.last[roomID]
	m.mu.Unlock()

	if ok {
		s.box.offer(last)
	}
	return s, nil
}

// Subscribers returns the number of open subscriptions for roomID
func (m *Memory) Subscribers(roomID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[roomID])
}

type memorySub struct {
	hub    *Memory
	roomID uuid.UUID
	box    *mailbox
}

func (s *memorySub) C() <-chan models.RoomSnapshot {
	return s.box.ch
}

func (s *memorySub) Close() error {
	s.hub.mu.Lock()
	if subs := s.hub.subs[s.roomID]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.roomID)
		}
	}
	s.hub.mu.Unlock()

	s.box.close()
	return nil
}
