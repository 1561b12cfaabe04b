// Package presence is the ephemeral variant of the game: no durable store,
// only the latest payload each member publishes on a room's presence channel.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is the view rebuilt from the current member payloads.
type State struct {
	Roster  roster.Roster
	Holder  uuid.UUID
	Members []models.PresencePayload
}

// Derive rebuilds a State from member payloads. Members are ordered by
// (JoinedAt, ID). The holder is the first flagged member in that order; if
// nobody is flagged it is the member with the lowest id.
func Derive(payloads []models.PresencePayload) State {
	members := make([]models.PresencePayload, len(payloads))
	copy(members, payloads)
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID.String() < members[j].ID.String()
	})

	participants := make([]models.Participant, len(members))
	var holder uuid.UUID
	for i, m := range members {
		participants[i] = models.Participant{ID: m.ID, DisplayName: m.Name, Seq: i + 1, JoinedAt: m.JoinedAt}
		if m.HasStone && holder == uuid.Nil {
			holder = m.ID
		}
	}
	if holder == uuid.Nil && len(members) > 0 {
		holder = members[0].ID
		for _, m := range members[1:] {
			if m.ID.String() < holder.String() {
				holder = m.ID
			}
		}
	}

	return State{Roster: roster.New(participants), Holder: holder, Members: members}
}

// PassPayloads returns the payloads every member must republish for caller to
// hand the stone to its neighbour.
func PassPayloads(s State, caller uuid.UUID, dir roster.Direction) ([]models.PresencePayload, error) {
	if s.Holder != caller {
		return nil, fmt.Errorf("participant %s is not the holder: %w", caller, models.ErrIllegalTransition)
	}
	if !dir.Valid() {
		return nil, fmt.Errorf("unknown direction %q: %w", dir, models.ErrIllegalTransition)
	}
	next, err := s.Roster.Step(caller, dir)
	if err != nil {
		return nil, err
	}

	out := make([]models.PresencePayload, len(s.Members))
	for i, m := range s.Members {
		m.HasStone = m.ID == next
		out[i] = m
	}
	return out, nil
}

// Tracker is the room-scoped presence aggregate of one process. It keeps the
// latest payload per member and answers sync requests for local members.
type Tracker struct {
	roomID    uuid.UUID
	transport Transport

	mu       sync.RWMutex
	members  map[uuid.UUID]models.PresencePayload
	locals   map[uuid.UUID]bool
	watchers map[chan struct{}]bool
}

func newTracker(roomID uuid.UUID, transport Transport) *Tracker {
	return &Tracker{
		roomID:    roomID,
		transport: transport,
		members:   make(map[uuid.UUID]models.PresencePayload),
		locals:    make(map[uuid.UUID]bool),
		watchers:  make(map[chan struct{}]bool),
	}
}

// State derives the current view
func (t *Tracker) State() State {
	t.mu.RLock()
	payloads := make([]models.PresencePayload, 0, len(t.members))
	for _, m := range t.members {
		payloads = append(payloads, m)
	}
	t.mu.RUnlock()
	return Derive(payloads)
}

// Payload returns the latest payload of id
func (t *Tracker) Payload(id uuid.UUID) (models.PresencePayload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.members[id]
	return p, ok
}

func (t *Tracker) addLocal(id uuid.UUID) {
	t.mu.Lock()
	t.locals[id] = true
	t.mu.Unlock()
}

func (t *Tracker) removeLocal(id uuid.UUID) {
	t.mu.Lock()
	delete(t.locals, id)
	t.mu.Unlock()
}

// watch returns a channel that is signalled after membership changes.
// Signals coalesce; the receiver reads State for the latest view.
func (t *Tracker) watch() chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.watchers[ch] = true
	t.mu.Unlock()
	return ch
}

func (t *Tracker) unwatch(ch chan struct{}) {
	t.mu.Lock()
	delete(t.watchers, ch)
	t.mu.Unlock()
}

// notify must be called with t.mu held
func (t *Tracker) notify() {
	for ch := range t.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Tracker) handle(ev Event) {
	switch ev.Kind {
	case EventTrack:
		t.mu.Lock()
		t.members[ev.Payload.ID] = ev.Payload
		t.notify()
		t.mu.Unlock()
	case EventLeave:
		t.mu.Lock()
		delete(t.members, ev.Payload.ID)
		t.notify()
		t.mu.Unlock()
	case EventSync:
		t.answerSync(ev.Payload.ID)
	}
}

// answerSync republishes local members so a newcomer learns about them.
func (t *Tracker) answerSync(requester uuid.UUID) {
	t.mu.RLock()
	var replies []models.PresencePayload
	for id := range t.locals {
		if p, ok := t.members[id]; ok && id != requester {
			replies = append(replies, p)
		}
	}
	t.mu.RUnlock()

	for _, p := range replies {
		if err := t.transport.Publish(context.Background(), t.roomID, Event{Kind: EventTrack, Payload: p}); err != nil {
			log.Error().Err(err).Str("room_id", t.roomID.String()).Msg("failed to answer presence sync")
		}
	}
}
