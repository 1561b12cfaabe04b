package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// expireAttempts bounds how often Expire re-reads a room whose holder moved
// between the read and the conditional write.
const expireAttempts = 5

type Config struct {
	Duration      time.Duration // Countdown length of an active round
	SkewTolerance time.Duration // How early an expiry trigger may arrive
}

func DefaultConfig() Config {
	return Config{
		Duration:      60 * time.Second,
		SkewTolerance: 2 * time.Second,
	}
}

// LifecycleRepository defines what the controller needs from the durable store
type LifecycleRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	CompareAndSwapRoom(ctx context.Context, prev, next models.Room) error
}

// Controller commits phase transitions
type Controller struct {
	repo  LifecycleRepository
	clock clockwork.Clock
	cfg   Config
}

// NewController creates a new round Controller
func NewController(repo LifecycleRepository, clock clockwork.Clock, cfg Config) *Controller {
	return &Controller{
		repo:  repo,
		clock: clock,
		cfg:   cfg,
	}
}

// Duration returns the configured countdown length
func (c *Controller) Duration() time.Duration {
	return c.cfg.Duration
}

// Start begins the round. A start that loses to a concurrent start or join
// reports ErrInvalidPhaseTransition.
func (c *Controller) Start(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := c.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	next, err := Start(*room, roster.New(participants), caller, c.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := c.repo.CompareAndSwapRoom(ctx, *room, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("start raced: %w", models.ErrInvalidPhaseTransition)
		}
		return nil, fmt.Errorf("failed to start round: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", caller.String()).
		Str("from", string(room.Status)).
		Str("to", string(next.Status)).
		Str("holder", next.CurrentHolderID.String()).
		Int("participants", len(participants)).
		Msg("round started")

	return &next, nil
}

// Expire ends the active phase. Any observer may call it; duplicates and
// early triggers are no-ops and return the current room with a nil error.
func (c *Controller) Expire(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	for attempt := 0; attempt < expireAttempts; attempt++ {
		room, err := c.getRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}

		next, err := Expire(*room, c.cfg.Duration, c.cfg.SkewTolerance, c.clock.Now())
		if errors.Is(err, models.ErrInvalidPhaseTransition) {
			log.Debug().
				Err(err).
				Str("room_id", roomID.String()).
				Msg("ignoring expiry trigger")
			return room, nil
		}
		if err != nil {
			return nil, err
		}

		err = c.repo.CompareAndSwapRoom(ctx, *room, next)
		if errors.Is(err, store.ErrConflict) {
			// the stone moved or another observer won; re-read and decide again
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to expire round: %w", err)
		}

		log.Info().
			Str("room_id", roomID.String()).
			Str("from", string(room.Status)).
			Str("to", string(next.Status)).
			Bool("floating", next.HolderAtGuessing == nil).
			Msg("round expired")
		return &next, nil
	}
	return nil, fmt.Errorf("expire room %s: gave up after %d conflicts", roomID, expireAttempts)
}

func (c *Controller) getRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := c.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}
