package game

import (
	"encoding/json"
	"time"

	"github.com/ankianan/passingstone/go/internal/joincode"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/google/uuid"
)

// Config holds the rules a game App enforces
type Config struct {
	Round          round.Config
	GuessPolicy    models.GuessPolicy
	JoinCodeLength int
}

// DefaultConfig returns a 60 second round with overwrite guessing
func DefaultConfig() Config {
	return Config{
		Round:          round.DefaultConfig(),
		GuessPolicy:    models.GuessPolicyOverwrite,
		JoinCodeLength: joincode.DefaultLength,
	}
}

// CreateRoomRequest represents the data needed to open a new room
type CreateRoomRequest struct {
	CreatorID   uuid.UUID       `json:"creator_id" validate:"required"`
	DisplayName string          `json:"display_name" validate:"required"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// JoinRoomRequest represents the data needed to join a waiting room by code
type JoinRoomRequest struct {
	Code          string          `json:"code" validate:"required"`
	ParticipantID uuid.UUID       `json:"participant_id" validate:"required"`
	DisplayName   string          `json:"display_name" validate:"required"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func (r CreateRoomRequest) participant(now time.Time) models.Participant {
	return models.Participant{
		ID:          r.CreatorID,
		DisplayName: r.DisplayName,
		JoinedAt:    now,
		Metadata:    r.Metadata,
	}
}

func (r JoinRoomRequest) participant(now time.Time) models.Participant {
	return models.Participant{
		ID:          r.ParticipantID,
		DisplayName: r.DisplayName,
		JoinedAt:    now,
		Metadata:    r.Metadata,
	}
}
