// Package game is the entry point for every participant intent. It composes
// the roster, stone, round, scoring and join-code components over one store.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ankianan/passingstone/go/internal/joincode"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/scoring"
	"github.com/ankianan/passingstone/go/internal/stone"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// createAttempts bounds retries when a freshly allocated code is taken by a
// concurrent CreateRoom between the check and the insert.
const createAttempts = 3

// GameRepository defines everything the game needs from the durable store
type GameRepository interface {
	store.SnapshotReader
	CreateRoom(ctx context.Context, room models.Room, creator models.Participant) (*models.Room, error)
	FindWaitingRoom(ctx context.Context, code string) (*models.Room, error)
	WaitingCodeExists(ctx context.Context, code string) (bool, error)
	AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) (*models.Participant, error)
	CompareAndSwapRoom(ctx context.Context, prev, next models.Room) error
	UpsertGuess(ctx context.Context, g models.Guess, policy models.GuessPolicy) (*models.Guess, error)
	FinishRound(ctx context.Context, roomID uuid.UUID, endedAt time.Time) ([]models.GuessResult, error)
}

// App handles game business logic
type App struct {
	repo  GameRepository
	clock clockwork.Clock

	codes   *joincode.Allocator
	rosters *roster.App
	stones  *stone.App
	rounds  *round.Controller
	scores  *scoring.Aggregator
}

// NewApp creates a new game App. Extra joincode options are applied after the
// configured code length.
func NewApp(repo GameRepository, clock clockwork.Clock, cfg Config, codeOpts ...joincode.Option) *App {
	if cfg.JoinCodeLength <= 0 {
		cfg.JoinCodeLength = joincode.DefaultLength
	}
	opts := append([]joincode.Option{joincode.WithLength(cfg.JoinCodeLength)}, codeOpts...)

	return &App{
		repo:    repo,
		clock:   clock,
		codes:   joincode.New(repo, opts...),
		rosters: roster.NewApp(repo),
		stones:  stone.NewApp(repo),
		rounds:  round.NewController(repo, clock, cfg.Round),
		scores:  scoring.NewAggregator(repo, clock, cfg.GuessPolicy),
	}
}

// RoundDuration is the configured countdown length
func (a *App) RoundDuration() time.Duration {
	return a.rounds.Duration()
}

// CreateRoom opens a waiting room with a fresh join code; the creator is the
// first participant.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.RoomSnapshot, error) {
	if req.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("creator id is required: %w", models.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("display name is required: %w", models.ErrInvalidArgument)
	}

	now := a.clock.Now()
	for attempt := 1; attempt <= createAttempts; attempt++ {
		code, err := a.codes.Allocate(ctx)
		if err != nil {
			return nil, err
		}

		room, err := a.repo.CreateRoom(ctx, models.Room{
			ID:        uuid.New(),
			JoinCode:  code,
			CreatorID: req.CreatorID,
			Status:    models.RoomStatusWaiting,
			CreatedAt: now,
		}, req.participant(now))
		if errors.Is(err, store.ErrConflict) {
			log.Debug().Str("join_code", code).Int("attempt", attempt).Msg("join code taken, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		log.Info().
			Str("room_id", room.ID.String()).
			Str("participant_id", req.CreatorID.String()).
			Str("join_code", room.JoinCode).
			Msg("room created")
		return a.Snapshot(ctx, room.ID)
	}
	return nil, fmt.Errorf("create room after %d attempts: %w", createAttempts, models.ErrJoinCodeExhausted)
}

// JoinRoom adds a participant to the waiting room holding code
func (a *App) JoinRoom(ctx context.Context, req JoinRoomRequest) (*models.RoomSnapshot, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !a.codes.Valid(code) {
		return nil, fmt.Errorf("join code %q: %w", req.Code, models.ErrRoomNotFound)
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("display name is required: %w", models.ErrInvalidArgument)
	}

	room, err := a.repo.FindWaitingRoom(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("join code %s: %w", code, models.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}

	if _, err := a.rosters.Join(ctx, room.ID, req.participant(a.clock.Now())); err != nil {
		return nil, err
	}
	return a.Snapshot(ctx, room.ID)
}

// StartRound moves a waiting room to active with the first participant holding
func (a *App) StartRound(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	return a.rounds.Start(ctx, roomID, caller)
}

func (a *App) Pass(ctx context.Context, roomID, caller uuid.UUID, dir roster.Direction) (*models.Room, error) {
	return a.stones.Pass(ctx, roomID, caller, dir)
}

func (a *App) Toss(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	return a.stones.Toss(ctx, roomID, caller)
}

func (a *App) Claim(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
	return a.stones.Claim(ctx, roomID, caller)
}

// SubmitGuess records a guess and finishes the room once everyone has voted
func (a *App) SubmitGuess(ctx context.Context, roomID, voter, guessed uuid.UUID) (*models.Guess, error) {
	return a.scores.SubmitGuess(ctx, roomID, voter, guessed)
}

// RoundExpired is reported by any observer whose countdown reached zero.
// Repeated or early reports are harmless.
func (a *App) RoundExpired(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return a.rounds.Expire(ctx, roomID)
}

// Expire lets the App serve as a round.Expirer for schedulers and sessions
func (a *App) Expire(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return a.RoundExpired(ctx, roomID)
}

// GetRoom returns the room record
func (a *App) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// Snapshot returns the full authoritative state of a room
func (a *App) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	snap, err := store.LoadSnapshot(ctx, a.repo, roomID, a.clock.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}
