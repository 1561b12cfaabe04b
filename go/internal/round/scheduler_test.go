package round_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerExpiresRoomAtDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t, 2)
	started, err := f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	require.NoError(t, err)

	s := round.NewScheduler(f.ctrl, f.clock, f.ctrl.Duration(), 2)
	go s.Run(ctx)

	s.Observe(ctx, *started)
	s.Observe(ctx, *started) // same round, armed once
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, s.Pending())

	f.clock.Advance(59 * time.Second)
	room, err := f.mem.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, room.Status)

	f.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		room, err := f.mem.GetRoom(ctx, f.room.ID)
		return err == nil && room.Status == models.RoomStatusGuessing
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerCancelsWhenRoomLeavesActive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t, 2)
	started, err := f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	require.NoError(t, err)

	s := round.NewScheduler(f.ctrl, f.clock, f.ctrl.Duration(), 1)
	s.Observe(ctx, *started)
	assert.Equal(t, 1, s.Pending())

	guessing := started.Clone()
	guessing.Status = models.RoomStatusGuessing
	s.Observe(ctx, guessing)
	assert.Equal(t, 0, s.Pending())
}

// failOnceExpirer fails its first call the way a dropped database connection
// would, then hands over to next.
type failOnceExpirer struct {
	next round.Expirer

	mu    sync.Mutex
	calls int
}

func (e *failOnceExpirer) Expire(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	e.mu.Lock()
	e.calls++
	first := e.calls == 1
	e.mu.Unlock()
	if first {
		return nil, errors.New("connection reset")
	}
	return e.next.Expire(ctx, roomID)
}

func (e *failOnceExpirer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestSchedulerRetriesOverdueRoomAfterFailedExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t, 2)
	started, err := f.ctrl.Start(ctx, f.room.ID, f.ids[0])
	require.NoError(t, err)
	f.clock.Advance(2 * f.ctrl.Duration())

	expirer := &failOnceExpirer{next: f.ctrl}
	s := round.NewScheduler(expirer, f.clock, f.ctrl.Duration(), 1)
	go s.Run(ctx)

	s.Observe(ctx, *started)
	require.Eventually(t, func() bool { return expirer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	room, err := f.mem.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, room.Status)

	// a later observation of the same round, e.g. the listener resync, retries
	s.Observe(ctx, *started)
	assert.Eventually(t, func() bool {
		room, err := f.mem.GetRoom(ctx, f.room.ID)
		return err == nil && room.Status == models.RoomStatusGuessing
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, expirer.count())
	assert.Equal(t, 0, s.Pending())
}
