package round_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem   *store.Memory
	clock *clockwork.FakeClock
	ctrl  *round.Controller
	room  models.Room
	ids   []uuid.UUID
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	mem := store.NewMemory(clock)

	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	room, err := mem.CreateRoom(ctx, models.Room{ID: uuid.New(), JoinCode: "ROUND1", CreatorID: ids[0]}, models.Participant{ID: ids[0]})
	require.NoError(t, err)
	for _, id := range ids[1:] {
		_, err := mem.AddParticipant(ctx, room.ID, models.Participant{ID: id})
		require.NoError(t, err)
	}
	return fixture{
		mem:   mem,
		clock: clock,
		ctrl:  round.NewController(mem, clock, round.DefaultConfig()),
		room:  *room,
		ids:   ids,
	}
}

func TestControllerStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	started, err := f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	require.NoError(t, err)
	assert.True(t, started.HeldBy(f.ids[0]))
	assert.Equal(t, f.clock.Now(), *started.StartedAt)

	_, err = f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	assert.ErrorIs(t, err, models.ErrInvalidPhaseTransition)

	_, err = f.ctrl.Start(ctx, uuid.New(), f.ids[0])
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestControllerStartNeedsTwo(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.ctrl.Start(context.Background(), f.room.ID, f.ids[0])
	assert.ErrorIs(t, err, models.ErrInsufficientParticipants)

	room, err := f.mem.GetRoom(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
}

func TestControllerExpireIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	_, err := f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	require.NoError(t, err)

	// early trigger is ignored
	early, err := f.ctrl.Expire(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, early.Status)

	f.clock.Advance(60 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := f.ctrl.Expire(ctx, f.room.ID)
			assert.NoError(t, err)
			assert.Equal(t, models.RoomStatusGuessing, room.Status)
		}()
	}
	wg.Wait()

	room, err := f.mem.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusGuessing, room.Status)
	require.NotNil(t, room.HolderAtGuessing)
	assert.Equal(t, f.ids[0], *room.HolderAtGuessing)
}
