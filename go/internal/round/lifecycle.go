// Package round drives the phase machine of a room:
// waiting → active → guessing → finished, strictly forward.
package round

import (
	"fmt"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
)

var phaseOrder = map[models.RoomStatus]int{
	models.RoomStatusWaiting:  0,
	models.RoomStatusActive:   1,
	models.RoomStatusGuessing: 2,
	models.RoomStatusFinished: 3,
}

// PhaseIndex returns the position of status in the phase order, or -1.
func PhaseIndex(status models.RoomStatus) int {
	if i, ok := phaseOrder[status]; ok {
		return i
	}
	return -1
}

// CanTransition reports whether from → to is a legal edge: exactly one step
// forward.
func CanTransition(from, to models.RoomStatus) bool {
	f, ok := phaseOrder[from]
	if !ok {
		return false
	}
	t, ok := phaseOrder[to]
	if !ok {
		return false
	}
	return t == f+1
}

func checkEdge(room models.Room, to models.RoomStatus) error {
	if !CanTransition(room.Status, to) {
		return fmt.Errorf("%s → %s: %w", room.Status, to, models.ErrInvalidPhaseTransition)
	}
	return nil
}

// Start moves a waiting room to active. Only the creator may start, the
// roster needs at least MinParticipants, and the first participant in turn
// order receives the stone.
func Start(room models.Room, r roster.Roster, caller uuid.UUID, now time.Time) (models.Room, error) {
	if err := checkEdge(room, models.RoomStatusActive); err != nil {
		return room, err
	}
	if caller != room.CreatorID {
		return room, fmt.Errorf("only the creator can start: %w", models.ErrIllegalTransition)
	}
	if r.Len() < roster.MinParticipants {
		return room, fmt.Errorf("need %d participants, have %d: %w",
			roster.MinParticipants, r.Len(), models.ErrInsufficientParticipants)
	}
	first, _ := r.First()

	next := room.Clone()
	next.Status = models.RoomStatusActive
	next.CurrentHolderID = models.IDPtr(first.ID)
	next.HolderAtGuessing = nil
	started := now
	next.StartedAt = &started
	next.EndedAt = nil
	return next, nil
}

// Expire moves an active room to guessing once its countdown has run out.
// A trigger arriving earlier than skew before the deadline is rejected; the
// holder at this instant is frozen for scoring.
func Expire(room models.Room, duration, skew time.Duration, now time.Time) (models.Room, error) {
	if err := checkEdge(room, models.RoomStatusGuessing); err != nil {
		return room, err
	}
	if deadline, ok := Deadline(room, duration); ok && now.Before(deadline.Add(-skew)) {
		return room, fmt.Errorf("round ends at %s: %w", deadline.Format(time.RFC3339), models.ErrInvalidPhaseTransition)
	}

	next := room.Clone()
	next.Status = models.RoomStatusGuessing
	if room.CurrentHolderID != nil {
		next.HolderAtGuessing = models.IDPtr(*room.CurrentHolderID)
	}
	return next, nil
}

// Finish moves a guessing room to finished.
func Finish(room models.Room, now time.Time) (models.Room, error) {
	if err := checkEdge(room, models.RoomStatusFinished); err != nil {
		return room, err
	}
	next := room.Clone()
	next.Status = models.RoomStatusFinished
	ended := now
	next.EndedAt = &ended
	return next, nil
}

// Deadline returns when the active round's countdown reaches zero.
func Deadline(room models.Room, duration time.Duration) (time.Time, bool) {
	if room.StartedAt == nil {
		return time.Time{}, false
	}
	return room.StartedAt.Add(duration), true
}

// Remaining is the countdown shown to players. A waiting room shows the full
// duration; once the round is past active it is zero.
func Remaining(room models.Room, duration time.Duration, now time.Time) time.Duration {
	switch room.Status {
	case models.RoomStatusWaiting:
		return duration
	case models.RoomStatusActive:
		deadline, ok := Deadline(room, duration)
		if !ok {
			return duration
		}
		if left := deadline.Sub(now); left > 0 {
			return left
		}
		return 0
	default:
		return 0
	}
}
