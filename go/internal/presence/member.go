package presence

import (
	"context"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Member is one participant present in a room
type Member struct {
	id        uuid.UUID
	roomID    uuid.UUID
	tracker   *Tracker
	registry  *Registry
	transport Transport
	changes   chan struct{}
}

// Join tracks a new member. The first member of an empty room starts with
// the stone.
func Join(ctx context.Context, registry *Registry, clock clockwork.Clock, roomID, id uuid.UUID, name string) (*Member, error) {
	tracker, err := registry.Acquire(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m := &Member{
		id:        id,
		roomID:    roomID,
		tracker:   tracker,
		registry:  registry,
		transport: registry.transport,
		changes:   tracker.watch(),
	}

	// ask present members to republish before deciding who starts with the stone
	if err := m.publish(ctx, Event{Kind: EventSync, Payload: models.PresencePayload{ID: id, Name: name}}); err != nil {
		_ = m.release()
		return nil, err
	}

	self := models.PresencePayload{
		ID:       id,
		Name:     name,
		HasStone: len(tracker.State().Members) == 0,
		JoinedAt: clock.Now(),
	}
	tracker.addLocal(id)

	if err := m.publish(ctx, Event{Kind: EventTrack, Payload: self}); err != nil {
		_ = m.release()
		return nil, err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", id.String()).
		Bool("has_stone", self.HasStone).
		Msg("presence joined")
	return m, nil
}

// ID returns the member's participant id
func (m *Member) ID() uuid.UUID {
	return m.id
}

// State returns the room view as this member sees it
func (m *Member) State() State {
	return m.tracker.State()
}

// Changes is signalled whenever the room's membership or holder may have
// changed
func (m *Member) Changes() <-chan struct{} {
	return m.changes
}

// HasStone reports whether this member is the derived holder
func (m *Member) HasStone() bool {
	return m.tracker.State().Holder == m.id
}

// Pass republishes every member's payload with the stone moved to the
// neighbour of this member.
func (m *Member) Pass(ctx context.Context, dir roster.Direction) error {
	payloads, err := PassPayloads(m.tracker.State(), m.id, dir)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if err := m.publish(ctx, Event{Kind: EventTrack, Payload: p}); err != nil {
			return err
		}
	}

	log.Info().
		Str("room_id", m.roomID.String()).
		Str("participant_id", m.id.String()).
		Str("direction", string(dir)).
		Msg("presence stone passed")
	return nil
}

// Leave announces departure and releases the room tracker
func (m *Member) Leave(ctx context.Context) error {
	payload, ok := m.tracker.Payload(m.id)
	if !ok {
		payload = models.PresencePayload{ID: m.id}
	}
	pubErr := m.publish(ctx, Event{Kind: EventLeave, Payload: payload})
	if err := m.release(); err != nil {
		return err
	}
	return pubErr
}

func (m *Member) release() error {
	m.tracker.unwatch(m.changes)
	m.tracker.removeLocal(m.id)
	_, err := m.registry.Release(m.roomID)
	return err
}

func (m *Member) publish(ctx context.Context, ev Event) error {
	if err := m.transport.Publish(ctx, m.roomID, ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}
