package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ScoringRepository defines what the aggregator needs from the durable store
type ScoringRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	UpsertGuess(ctx context.Context, g models.Guess, policy models.GuessPolicy) (*models.Guess, error)
	ListGuesses(ctx context.Context, roomID uuid.UUID) ([]models.Guess, error)
	FinishRound(ctx context.Context, roomID uuid.UUID, endedAt time.Time) ([]models.GuessResult, error)
}

// Aggregator records guesses and finishes the room exactly once
type Aggregator struct {
	repo   ScoringRepository
	clock  clockwork.Clock
	policy models.GuessPolicy
}

// NewAggregator creates a new scoring Aggregator
func NewAggregator(repo ScoringRepository, clock clockwork.Clock, policy models.GuessPolicy) *Aggregator {
	if policy == "" {
		policy = models.GuessPolicyOverwrite
	}
	return &Aggregator{
		repo:   repo,
		clock:  clock,
		policy: policy,
	}
}

// Policy returns the duplicate-guess policy in effect
func (a *Aggregator) Policy() models.GuessPolicy {
	return a.policy
}

// SubmitGuess records voter's guess and then checks for completion. Both the
// voter and the guessed holder must be on the roster.
func (a *Aggregator) SubmitGuess(ctx context.Context, roomID, voterID, guessedID uuid.UUID) (*models.Guess, error) {
	room, err := a.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusGuessing {
		return nil, fmt.Errorf("guess in status %s: %w", room.Status, models.ErrInvalidPhaseTransition)
	}

	participants, err := a.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	r := roster.New(participants)
	if !r.Contains(voterID) {
		return nil, fmt.Errorf("voter %s: %w", voterID, models.ErrNotParticipant)
	}
	if !r.Contains(guessedID) {
		return nil, fmt.Errorf("guessed holder %s: %w", guessedID, models.ErrNotParticipant)
	}

	guess, err := a.repo.UpsertGuess(ctx, models.Guess{
		RoomID:          roomID,
		VoterID:         voterID,
		GuessedHolderID: guessedID,
	}, a.policy)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, fmt.Errorf("voter %s: %w", voterID, models.ErrDuplicateGuess)
		case errors.Is(err, store.ErrConflict):
			return nil, fmt.Errorf("room left guessing: %w", models.ErrInvalidPhaseTransition)
		}
		return nil, fmt.Errorf("failed to record guess: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", voterID.String()).
		Str("guessed_id", guessedID.String()).
		Str("policy", string(a.policy)).
		Msg("guess recorded")

	if _, err := a.TryComplete(ctx, roomID); err != nil {
		return guess, err
	}
	return guess, nil
}

// TryComplete runs the scoring pass if every participant has voted. It
// reports whether this call finished the room; a concurrent scorer that got
// there first makes it a no-op.
func (a *Aggregator) TryComplete(ctx context.Context, roomID uuid.UUID) (bool, error) {
	room, err := a.getRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	now := a.clock.Now()
	if _, err := round.Finish(*room, now); err != nil {
		return false, nil
	}

	participants, err := a.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to list participants: %w", err)
	}
	guesses, err := a.repo.ListGuesses(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to list guesses: %w", err)
	}
	if !Complete(participants, guesses) {
		return false, nil
	}

	// correctness is decided by the store together with the phase flip, so a
	// guess overwritten after the completion check is still scored as stored
	results, err := a.repo.FinishRound(ctx, roomID, now)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Debug().Str("room_id", roomID.String()).Msg("scoring pass already applied")
			return false, nil
		}
		return false, fmt.Errorf("failed to finish round: %w", err)
	}

	correct := 0
	for _, r := range results {
		if r.IsCorrect {
			correct++
		}
	}
	log.Info().
		Str("room_id", roomID.String()).
		Str("from", string(models.RoomStatusGuessing)).
		Str("to", string(models.RoomStatusFinished)).
		Int("guesses", len(results)).
		Int("correct", correct).
		Msg("round scored")

	return true, nil
}

func (a *Aggregator) getRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}
