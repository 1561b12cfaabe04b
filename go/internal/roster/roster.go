package roster

import (
	"fmt"
	"sort"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

// Direction selects the neighbour in the turn sequence.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionNext || d == DirectionPrevious
}

// MinParticipants is the smallest roster a round can start with.
const MinParticipants = 2

// Roster is the ordered set of participants of one room. The order is join
// order (Seq) and is append-only; the zero value is an empty roster.
type Roster struct {
	members []models.Participant
}

// New builds a roster from persisted participants, ordering them by Seq.
// Ties (which the store never produces) fall back to the participant id so the
// order stays deterministic.
func New(participants []models.Participant) Roster {
	members := make([]models.Participant, len(participants))
	copy(members, participants)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Seq != members[j].Seq {
			return members[i].Seq < members[j].Seq
		}
		return members[i].ID.String() < members[j].ID.String()
	})
	return Roster{members: members}
}

// Join appends p to the roster. Joining is only allowed while the room is
// waiting; joining twice returns the roster unchanged.
func (r Roster) Join(status models.RoomStatus, p models.Participant) (Roster, error) {
	if status != models.RoomStatusWaiting {
		return r, fmt.Errorf("join in status %s: %w", status, models.ErrRoomClosed)
	}
	if r.Contains(p.ID) {
		return r, nil
	}

	next := 1
	if n := len(r.members); n > 0 {
		next = r.members[n-1].Seq + 1
	}
	p.Seq = next

	members := make([]models.Participant, len(r.members), len(r.members)+1)
	copy(members, r.members)
	return Roster{members: append(members, p)}, nil
}

// List returns a copy of the participants in turn order.
func (r Roster) List() []models.Participant {
	out := make([]models.Participant, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the number of participants.
func (r Roster) Len() int {
	return len(r.members)
}

// IDs returns participant ids in turn order.
func (r Roster) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.members))
	for i, m := range r.members {
		ids[i] = m.ID
	}
	return ids
}

// IndexOf returns the position of id in the turn sequence, or -1.
func (r Roster) IndexOf(id uuid.UUID) int {
	for i, m := range r.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is on the roster.
func (r Roster) Contains(id uuid.UUID) bool {
	return r.IndexOf(id) >= 0
}

// First returns the participant that joined first.
func (r Roster) First() (models.Participant, bool) {
	if len(r.members) == 0 {
		return models.Participant{}, false
	}
	return r.members[0], true
}

// HolderIndex returns the turn position of the room's current holder, or -1
// when the stone is floating, unassigned, or held by someone not on the roster.
func (r Roster) HolderIndex(room models.Room) int {
	if room.CurrentHolderID == nil {
		return -1
	}
	return r.IndexOf(*room.CurrentHolderID)
}

// Next returns the participant after id, wrapping around.
func (r Roster) Next(id uuid.UUID) (uuid.UUID, error) {
	return r.Step(id, DirectionNext)
}

// Previous returns the participant before id, wrapping around.
func (r Roster) Previous(id uuid.UUID) (uuid.UUID, error) {
	return r.Step(id, DirectionPrevious)
}

// Step moves one position from id in the given direction:
// (index(id) ± 1) mod len.
func (r Roster) Step(id uuid.UUID, dir Direction) (uuid.UUID, error) {
	n := len(r.members)
	if n < MinParticipants {
		return uuid.Nil, fmt.Errorf("roster has %d participants: %w", n, models.ErrInsufficientParticipants)
	}
	idx := r.IndexOf(id)
	if idx < 0 {
		return uuid.Nil, fmt.Errorf("participant %s: %w", id, models.ErrNotParticipant)
	}

	switch dir {
	case DirectionNext:
		idx = (idx + 1) % n
	case DirectionPrevious:
		idx = (idx - 1 + n) % n
	default:
		return uuid.Nil, fmt.Errorf("unknown direction %q: %w", dir, models.ErrIllegalTransition)
	}
	return r.members[idx].ID, nil
}
