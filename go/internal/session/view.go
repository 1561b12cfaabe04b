// Package session is the client side of a room: an actor that receives
// authoritative snapshots one at a time and re-derives its whole view from
// each of them.
package session

import (
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/google/uuid"
)

// View is what one participant's client renders
type View struct {
	RoomID       uuid.UUID            `json:"room_id"`
	JoinCode     string               `json:"join_code"`
	Status       models.RoomStatus    `json:"status"`
	Self         uuid.UUID            `json:"self"`
	HolderID     *uuid.UUID           `json:"holder_id,omitempty"`
	Participants []models.Participant `json:"participants"`
	SelfIndex    int                  `json:"self_index"`
	HolderIndex  int                  `json:"holder_index"`
	Remaining    time.Duration        `json:"remaining"`
	HasStone     bool                 `json:"has_stone"`
	Floating     bool                 `json:"floating"`
	HasGuessed   bool                 `json:"has_guessed"`
	Pending      int                  `json:"pending_voters"`
	CanStart     bool                 `json:"can_start"`
	CanPass      bool                 `json:"can_pass"`
	CanToss      bool                 `json:"can_toss"`
	CanClaim     bool                 `json:"can_claim"`
	CanGuess     bool                 `json:"can_guess"`
	ObservedAt   time.Time            `json:"observed_at"`
}

// Derive computes the view of self from a snapshot. It is a pure function of
// its inputs.
func Derive(snap models.RoomSnapshot, self uuid.UUID, duration time.Duration, now time.Time) View {
	room := snap.Room
	r := roster.New(snap.Participants)

	voted := make(map[uuid.UUID]bool, len(snap.Voters))
	for _, id := range snap.Voters {
		voted[id] = true
	}
	pending := 0
	for _, id := range r.IDs() {
		if !voted[id] {
			pending++
		}
	}

	member := r.Contains(self)
	v := View{
		RoomID:       room.ID,
		JoinCode:     room.JoinCode,
		Status:       room.Status,
		Self:         self,
		Participants: r.List(),
		SelfIndex:    r.IndexOf(self),
		HolderIndex:  r.HolderIndex(room),
		Remaining:    round.Remaining(room, duration, now),
		HasStone:     room.HeldBy(self),
		Floating:     room.Floating(),
		HasGuessed:   voted[self],
		Pending:      pending,
		ObservedAt:   snap.ObservedAt,
	}
	if room.CurrentHolderID != nil {
		v.HolderID = models.IDPtr(*room.CurrentHolderID)
	}

	v.CanStart = room.Status == models.RoomStatusWaiting && room.CreatorID == self && r.Len() >= roster.MinParticipants
	v.CanPass = v.HasStone && r.Len() >= roster.MinParticipants
	v.CanToss = v.HasStone
	v.CanClaim = v.Floating && member
	v.CanGuess = room.Status == models.RoomStatusGuessing && member
	return v
}
