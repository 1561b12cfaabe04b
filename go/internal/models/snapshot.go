package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomSnapshot is the authoritative state of a room as published on the
// group channel. Subscribers re-derive their whole local view from it.
type RoomSnapshot struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
	Voters       []uuid.UUID   `json:"voters"`
	ObservedAt   time.Time     `json:"observed_at"`
}
