// Package stone holds the ownership state machine of the stone: it is either
// held by one participant or floating. Every transition takes the observed
// room and returns the next one; nothing is written here.
package stone

import (
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
)

// Pass hands the stone from caller to its neighbour in dir.
func Pass(room models.Room, r roster.Roster, caller uuid.UUID, dir roster.Direction) (models.Room, error) {
	if err := requireHolder(room, caller); err != nil {
		return room, err
	}
	if !dir.Valid() {
		return room, fmt.Errorf("unknown direction %q: %w", dir, models.ErrIllegalTransition)
	}

	to, err := r.Step(caller, dir)
	if err != nil {
		return room, err
	}

	next := room.Clone()
	next.CurrentHolderID = models.IDPtr(to)
	return next, nil
}

// Toss releases the stone; the room becomes floating.
func Toss(room models.Room, caller uuid.UUID) (models.Room, error) {
	if err := requireHolder(room, caller); err != nil {
		return room, err
	}
	next := room.Clone()
	next.CurrentHolderID = nil
	return next, nil
}

// Claim takes a floating stone. Claiming a held stone is illegal even for
// the holder.
func Claim(room models.Room, r roster.Roster, caller uuid.UUID) (models.Room, error) {
	if room.Status != models.RoomStatusActive {
		return room, fmt.Errorf("claim in status %s: %w", room.Status, models.ErrIllegalTransition)
	}
	if !room.Floating() {
		return room, fmt.Errorf("stone is held: %w", models.ErrIllegalTransition)
	}
	if !r.Contains(caller) {
		return room, fmt.Errorf("participant %s: %w", caller, models.ErrNotParticipant)
	}

	next := room.Clone()
	next.CurrentHolderID = models.IDPtr(caller)
	return next, nil
}

func requireHolder(room models.Room, caller uuid.UUID) error {
	if room.Status != models.RoomStatusActive {
		return fmt.Errorf("move in status %s: %w", room.Status, models.ErrIllegalTransition)
	}
	if !room.HeldBy(caller) {
		return fmt.Errorf("participant %s is not the holder: %w", caller, models.ErrIllegalTransition)
	}
	return nil
}
