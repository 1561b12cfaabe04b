package stone

import (
	"testing"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threePlayers() (roster.Roster, uuid.UUID, uuid.UUID, uuid.UUID) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	r := roster.New([]models.Participant{{ID: a, Seq: 1}, {ID: b, Seq: 2}, {ID: c, Seq: 3}})
	return r, a, b, c
}

func activeRoom(holder *uuid.UUID) models.Room {
	return models.Room{ID: uuid.New(), Status: models.RoomStatusActive, CurrentHolderID: holder}
}

func TestPassTossClaimScenario(t *testing.T) {
	r, a, b, c := threePlayers()
	room := activeRoom(models.IDPtr(a))

	room, err := Pass(room, r, a, roster.DirectionNext)
	require.NoError(t, err)
	assert.True(t, room.HeldBy(b))

	room, err = Pass(room, r, b, roster.DirectionPrevious)
	require.NoError(t, err)
	assert.True(t, room.HeldBy(a))

	room, err = Toss(room, a)
	require.NoError(t, err)
	assert.True(t, room.Floating())

	room, err = Claim(room, r, c)
	require.NoError(t, err)
	assert.True(t, room.HeldBy(c))
}

func TestPassByNonHolderNeverMovesStone(t *testing.T) {
	r, a, b, c := threePlayers()
	for _, caller := range []uuid.UUID{b, c, uuid.New()} {
		for _, dir := range []roster.Direction{roster.DirectionNext, roster.DirectionPrevious} {
			room := activeRoom(models.IDPtr(a))
			next, err := Pass(room, r, caller, dir)
			assert.ErrorIs(t, err, models.ErrIllegalTransition)
			assert.True(t, next.HeldBy(a))
		}
	}

	floating := activeRoom(nil)
	_, err := Pass(floating, r, a, roster.DirectionNext)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestClaimWhileHeldNeverMovesStone(t *testing.T) {
	r, a, b, c := threePlayers()
	for _, caller := range []uuid.UUID{a, b, c} {
		room := activeRoom(models.IDPtr(a))
		next, err := Claim(room, r, caller)
		assert.ErrorIs(t, err, models.ErrIllegalTransition)
		assert.True(t, next.HeldBy(a))
	}
}

func TestClaimByOutsider(t *testing.T) {
	r, _, _, _ := threePlayers()
	_, err := Claim(activeRoom(nil), r, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotParticipant)
}

func TestTossByNonHolder(t *testing.T) {
	_, a, b, _ := threePlayers()
	_, err := Toss(activeRoom(models.IDPtr(a)), b)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestPassNeedsTwoParticipants(t *testing.T) {
	a := uuid.New()
	r := roster.New([]models.Participant{{ID: a, Seq: 1}})
	_, err := Pass(activeRoom(models.IDPtr(a)), r, a, roster.DirectionNext)
	assert.ErrorIs(t, err, models.ErrInsufficientParticipants)
}

func TestNoMovesOutsideActive(t *testing.T) {
	r, a, _, _ := threePlayers()
	for _, status := range []models.RoomStatus{models.RoomStatusWaiting, models.RoomStatusGuessing, models.RoomStatusFinished} {
		held := models.Room{Status: status, CurrentHolderID: models.IDPtr(a)}
		_, err := Pass(held, r, a, roster.DirectionNext)
		assert.ErrorIs(t, err, models.ErrIllegalTransition, status)
		_, err = Toss(held, a)
		assert.ErrorIs(t, err, models.ErrIllegalTransition, status)

		unheld := models.Room{Status: status}
		_, err = Claim(unheld, r, a)
		assert.ErrorIs(t, err, models.ErrIllegalTransition, status)
	}
}

func TestTransitionsDoNotAliasInput(t *testing.T) {
	r, a, b, _ := threePlayers()
	room := activeRoom(models.IDPtr(a))
	next, err := Pass(room, r, a, roster.DirectionNext)
	require.NoError(t, err)
	assert.True(t, room.HeldBy(a))
	assert.True(t, next.HeldBy(b))
}
