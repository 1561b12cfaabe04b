package game

import (
	"encoding/json"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
)

// RPC messages. The caller's participant id always comes from the session
// header, never from the body.

type CreateRoomMsg struct {
	DisplayName string          `json:"display_name"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type JoinRoomMsg struct {
	Code        string          `json:"code"`
	DisplayName string          `json:"display_name"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type RoomMsg struct {
	RoomID string `json:"room_id"`
}

type PassMsg struct {
	RoomID    string           `json:"room_id"`
	Direction roster.Direction `json:"direction"`
}

type GuessMsg struct {
	RoomID    string `json:"room_id"`
	GuessedID string `json:"guessed_id"`
}

type ListMsg struct {
	Limit int `json:"limit"`
}

type SnapshotReply struct {
	Snapshot *models.RoomSnapshot `json:"snapshot"`
}

type RoomReply struct {
	Room *models.Room `json:"room"`
}

type GuessReply struct {
	Guess *models.Guess `json:"guess"`
}

type HistoryReply struct {
	Entries []models.HistoryEntry `json:"entries"`
}

type LeaderboardReply struct {
	Entries []models.ScoreEntry `json:"entries"`
}
