package models

import (
	"github.com/google/uuid"
)

// Guess is a voter's claim about who held the stone when the round ended.
// IsCorrect stays nil until the room is finished.
type Guess struct {
	ID              uuid.UUID `json:"id"`
	RoomID          uuid.UUID `json:"game_id"`
	VoterID         uuid.UUID `json:"user_id"`
	GuessedHolderID uuid.UUID `json:"guessed_user_id"`
	IsCorrect       *bool     `json:"is_correct,omitempty"`
}

// GuessResult is the resolved outcome of one guess during the scoring pass.
type GuessResult struct {
	GuessID   uuid.UUID `json:"guess_id"`
	VoterID   uuid.UUID `json:"voter_id"`
	IsCorrect bool      `json:"is_correct"`
}

// GuessPolicy decides what a second submission for the same voter does.
type GuessPolicy string

const (
	GuessPolicyOverwrite GuessPolicy = "overwrite"
	GuessPolicyStrict    GuessPolicy = "strict"
)
