package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the phase of a room's round.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusActive   RoomStatus = "active"
	RoomStatusGuessing RoomStatus = "guessing"
	RoomStatusFinished RoomStatus = "finished"
)

// Room represents one play session, identified by a join code.
//
// CurrentHolderID is nil while the stone is floating (or before the round
// starts). HolderAtGuessing freezes the holder observed when the round entered
// the guessing phase; scoring compares against it.
type Room struct {
	ID               uuid.UUID  `json:"id"`
	JoinCode         string     `json:"join_code"`
	CreatorID        uuid.UUID  `json:"creator_id"`
	Status           RoomStatus `json:"status"`
	CurrentHolderID  *uuid.UUID `json:"current_holder_id,omitempty"`
	HolderAtGuessing *uuid.UUID `json:"holder_at_guessing,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// Floating reports whether the stone is unowned during an active round.
func (r Room) Floating() bool {
	return r.Status == RoomStatusActive && r.CurrentHolderID == nil
}

// HeldBy reports whether id currently holds the stone.
func (r Room) HeldBy(id uuid.UUID) bool {
	return r.CurrentHolderID != nil && *r.CurrentHolderID == id
}

// GuessCorrect reports whether guessed held the stone when the room entered
// guessing. Nobody is correct if the stone was floating then.
func (r Room) GuessCorrect(guessed uuid.UUID) bool {
	return r.HolderAtGuessing != nil && *r.HolderAtGuessing == guessed
}

// Clone returns a deep copy so callers can derive a next state without
// aliasing the pointer fields of the observed one.
func (r Room) Clone() Room {
	out := r
	out.CurrentHolderID = cloneID(r.CurrentHolderID)
	out.HolderAtGuessing = cloneID(r.HolderAtGuessing)
	out.StartedAt = cloneTime(r.StartedAt)
	out.EndedAt = cloneTime(r.EndedAt)
	return out
}

// SameID compares two optional ids; nil equals nil.
func SameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IDPtr returns a pointer to a copy of id.
func IDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
