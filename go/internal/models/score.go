package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreEntry is a participant's cumulative score across rooms.
type ScoreEntry struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Total       int       `json:"total"`
}

// HistoryEntry is one room a user took part in, with the score earned there.
type HistoryEntry struct {
	RoomID    uuid.UUID  `json:"id"`
	JoinCode  string     `json:"join_code"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	JoinedAt  time.Time  `json:"joined_at"`
	Score     int        `json:"score"`
}
