package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write lost: the stored row no
	// longer matches the state the caller observed.
	ErrConflict = errors.New("conditional write conflict")
	// ErrDuplicate is returned by strict inserts that hit an existing key.
	ErrDuplicate = errors.New("duplicate record")
)

// SnapshotReader is the read surface needed to assemble a RoomSnapshot.
type SnapshotReader interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	ListGuesses(ctx context.Context, roomID uuid.UUID) ([]models.Guess, error)
}

// LoadSnapshot reads the latest authoritative state of a room. Voters holds
// each distinct voter once, in roster order.
func LoadSnapshot(ctx context.Context, r SnapshotReader, roomID uuid.UUID, now time.Time) (*models.RoomSnapshot, error) {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := r.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	guesses, err := r.ListGuesses(ctx, roomID)
	if err != nil {
		return nil, err
	}

	voted := make(map[uuid.UUID]bool, len(guesses))
	for _, g := range guesses {
		voted[g.VoterID] = true
	}
	voters := make([]uuid.UUID, 0, len(voted))
	for _, p := range participants {
		if voted[p.ID] {
			voters = append(voters, p.ID)
		}
	}

	return &models.RoomSnapshot{
		Room:         *room,
		Participants: participants,
		Voters:       voters,
		ObservedAt:   now,
	}, nil
}

func sortParticipants(ps []models.Participant) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Seq < ps[j].Seq })
}
