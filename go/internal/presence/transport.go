package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	EventTrack EventKind = "track" // member published its latest payload
	EventLeave EventKind = "leave"
	EventSync  EventKind = "sync" // newcomer asks members to republish
)

type Event struct {
	Kind    EventKind              `json:"kind"`
	Payload models.PresencePayload `json:"payload"`
}

// Transport is the broadcast medium of presence events
type Transport interface {
	Publish(ctx context.Context, roomID uuid.UUID, ev Event) error
	Subscribe(ctx context.Context, roomID uuid.UUID, fn func(Event)) (func() error, error)
}

// MemoryTransport delivers events synchronously to every subscriber in the
// process. Handlers run outside its lock so they may publish.
type MemoryTransport struct {
	mu     sync.RWMutex
	nextID int
	subs   map[uuid.UUID]map[int]func(Event)
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[uuid.UUID]map[int]func(Event))}
}

func (m *MemoryTransport) Publish(ctx context.Context, roomID uuid.UUID, ev Event) error {
	m.mu.RLock()
	handlers := make([]func(Event), 0, len(m.subs[roomID]))
	for _, fn := range m.subs[roomID] {
		handlers = append(handlers, fn)
	}
	m.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

func (m *MemoryTransport) Subscribe(ctx context.Context, roomID uuid.UUID, fn func(Event)) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[int]func(Event))
	}
	m.subs[roomID][id] = fn

	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[roomID], id)
		if len(m.subs[roomID]) == 0 {
			delete(m.subs, roomID)
		}
		return nil
	}, nil
}

// NATSTransport carries presence over core NATS subjects; presence is
// ephemeral so nothing is persisted in a stream.
type NATSTransport struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewNATSTransport(nc *nats.Conn, subjectPrefix string) *NATSTransport {
	if subjectPrefix == "" {
		subjectPrefix = "rooms.presence"
	}
	return &NATSTransport{nc: nc, subjectPrefix: subjectPrefix}
}

func (n *NATSTransport) subject(roomID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", n.subjectPrefix, roomID)
}

func (n *NATSTransport) Publish(ctx context.Context, roomID uuid.UUID, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	if err := n.nc.Publish(n.subject(roomID), data); err != nil {
		return fmt.Errorf("publish presence event: %w", err)
	}
	return nil
}

func (n *NATSTransport) Subscribe(ctx context.Context, roomID uuid.UUID, fn func(Event)) (func() error, error) {
	sub, err := n.nc.Subscribe(n.subject(roomID), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable presence event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to presence subject: %w", err)
	}
	// make sure the interest is registered before the caller publishes
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	return sub.Unsubscribe, nil
}
