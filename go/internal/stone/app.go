package stone

import (
	"context"
	"errors"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StoneRepository defines what the stone app needs from the durable store
type StoneRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	CompareAndSwapRoom(ctx context.Context, prev, next models.Room) error
}

// App commits stone transitions. Each commit is conditional on the status and
// holder the caller observed, so of two racing moves only one lands and the
// other gets ErrIllegalTransition.
type App struct {
	repo StoneRepository
}

// NewApp creates a new stone App
func NewApp(repo StoneRepository) *App {
	return &App{
		repo: repo,
	}
}

// Pass hands the stone to the caller's neighbour
func (a *App) Pass(ctx context.Context, roomID, caller uuid.UUID, dir roster.Direction) (*models.Room, error) {
	return a.apply(ctx, roomID, caller, "pass", func(room models.Room, r roster.Roster) (models.Room, error) {
		return Pass(room, r, caller, dir)
	})
}

// Toss releases the stone
func (a *App) Toss(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	return a.apply(ctx, roomID, caller, "toss", func(room models.Room, _ roster.Roster) (models.Room, error) {
		return Toss(room, caller)
	})
}

// Claim takes a floating stone
func (a *App) Claim(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	return a.apply(ctx, roomID, caller, "claim", func(room models.Room, r roster.Roster) (models.Room, error) {
		return Claim(room, r, caller)
	})
}

func (a *App) apply(
	ctx context.Context,
	roomID, caller uuid.UUID,
	op string,
	transition func(models.Room, roster.Roster) (models.Room, error),
) (*models.Room, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	participants, err := a.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	next, err := transition(*room, roster.New(participants))
	if err != nil {
		log.Debug().
			Err(err).
			Str("room_id", roomID.String()).
			Str("participant_id", caller.String()).
			Str("op", op).
			Msg("stone transition rejected")
		return nil, err
	}

	if err := a.repo.CompareAndSwapRoom(ctx, *room, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Debug().
				Str("room_id", roomID.String()).
				Str("participant_id", caller.String()).
				Str("op", op).
				Msg("stone transition lost race")
			return nil, fmt.Errorf("%s: state changed concurrently: %w", op, models.ErrIllegalTransition)
		}
		return nil, fmt.Errorf("failed to commit %s: %w", op, err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", caller.String()).
		Str("op", op).
		Str("from", holderString(room.CurrentHolderID)).
		Str("to", holderString(next.CurrentHolderID)).
		Msg("stone moved")

	return &next, nil
}

func holderString(id *uuid.UUID) string {
	if id == nil {
		return "floating"
	}
	return id.String()
}
