package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RosterRepository defines what the roster app needs from the durable store
type RosterRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) (*models.Participant, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
}

// App handles persisted roster membership
type App struct {
	repo RosterRepository
}

// NewApp creates a new roster App
func NewApp(repo RosterRepository) *App {
	return &App{
		repo: repo,
	}
}

// Join adds a participant to a waiting room. The store applies the append
// conditionally on the room still waiting, so a start racing with a join
// resolves to RoomClosed for the joiner.
func (a *App) Join(ctx context.Context, roomID uuid.UUID, p models.Participant) (Roster, error) {
	if p.ID == uuid.Nil {
		return Roster{}, fmt.Errorf("participant id is required")
	}

	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return Roster{}, translate(err)
	}

	current, err := a.List(ctx, roomID)
	if err != nil {
		return Roster{}, err
	}
	if _, err := current.Join(room.Status, p); err != nil {
		return Roster{}, err
	}

	added, err := a.repo.AddParticipant(ctx, roomID, p)
	if err != nil {
		return Roster{}, translate(err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", added.ID.String()).
		Int("seq", added.Seq).
		Msg("participant joined")

	return a.List(ctx, roomID)
}

// List returns the room's roster in turn order
func (a *App) List(ctx context.Context, roomID uuid.UUID) (Roster, error) {
	participants, err := a.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return Roster{}, fmt.Errorf("failed to list participants: %w", err)
	}
	return New(participants), nil
}

// HolderIndex returns the turn position of the room's holder, or -1
func (a *App) HolderIndex(ctx context.Context, roomID uuid.UUID) (int, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return -1, translate(err)
	}
	r, err := a.List(ctx, roomID)
	if err != nil {
		return -1, err
	}
	return r.HolderIndex(*room), nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", models.ErrRoomNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", models.ErrRoomClosed, err)
	default:
		return err
	}
}
