package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Participant is a member of a room's roster. Seq is the join order inside the
// room and never changes once assigned. Metadata is opaque client profile data
// (avatar, colour) stored alongside the membership.
type Participant struct {
	ID          uuid.UUID       `json:"id"`
	DisplayName string          `json:"display_name"`
	Seq         int             `json:"seq"`
	JoinedAt    time.Time       `json:"joined_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// PresencePayload is what a member publishes on the presence channel.
type PresencePayload struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	HasStone bool      `json:"hasStone"`
	JoinedAt time.Time `json:"joinedAt"`
}
