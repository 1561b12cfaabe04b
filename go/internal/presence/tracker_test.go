package presence

import (
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func payloads(n int) []models.PresencePayload {
	out := make([]models.PresencePayload, n)
	for i := range out {
		out[i] = models.PresencePayload{ID: uuid.New(), Name: string(rune('a' + i)), JoinedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestDeriveOrdersByJoinTime(t *testing.T) {
	ps := payloads(3)
	shuffled := []models.PresencePayload{ps[2], ps[0], ps[1]}

	s := Derive(shuffled)
	assert.Equal(t, []uuid.UUID{ps[0].ID, ps[1].ID, ps[2].ID}, s.Roster.IDs())
}

func TestDeriveFlaggedHolder(t *testing.T) {
	ps := payloads(3)
	ps[1].HasStone = true
	assert.Equal(t, ps[1].ID, Derive(ps).Holder)

	// two flags during a pass: the first in roster order wins on every client
	ps[2].HasStone = true
	assert.Equal(t, ps[1].ID, Derive(ps).Holder)
}

func TestDeriveDefaultHolderIsLowestID(t *testing.T) {
	ps := payloads(4)
	lowest := ps[0].ID
	for _, p := range ps {
		if p.ID.String() < lowest.String() {
			lowest = p.ID
		}
	}
	assert.Equal(t, lowest, Derive(ps).Holder)

	// enumeration order does not matter
	reversed := []models.PresencePayload{ps[3], ps[2], ps[1], ps[0]}
	assert.Equal(t, lowest, Derive(reversed).Holder)

	assert.Equal(t, uuid.Nil, Derive(nil).Holder)
}

func TestPassPayloads(t *testing.T) {
	ps := payloads(3)
	ps[0].HasStone = true
	s := Derive(ps)

	out, err := PassPayloads(s, ps[0].ID, roster.DirectionPrevious)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, p := range out {
		assert.Equal(t, p.ID == ps[2].ID, p.HasStone)
	}
	assert.Equal(t, ps[2].ID, Derive(out).Holder)

	_, err = PassPayloads(s, ps[1].ID, roster.DirectionNext)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	alone := Derive(ps[:1])
	_, err = PassPayloads(alone, ps[0].ID, roster.DirectionNext)
	assert.ErrorIs(t, err, models.ErrInsufficientParticipants)
}
