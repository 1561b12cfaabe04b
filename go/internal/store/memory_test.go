package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(t *testing.T, m *store.Memory, code string) (models.Room, models.Participant) {
	t.Helper()
	creator := models.Participant{ID: uuid.New(), DisplayName: "creator"}
	room, err := m.CreateRoom(context.Background(), models.Room{
		ID:        uuid.New(),
		JoinCode:  code,
		CreatorID: creator.ID,
		Status:    models.RoomStatusWaiting,
	}, creator)
	require.NoError(t, err)
	return *room, creator
}

func TestMemoryCreateRoom(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	m := store.NewMemory(clock)

	room, creator := newRoom(t, m, "ABC123")
	assert.Equal(t, clock.Now(), room.CreatedAt)

	t.Run("creator is the first participant", func(t *testing.T) {
		ps, err := m.ListParticipants(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, creator.ID, ps[0].ID)
		assert.Equal(t, 1, ps[0].Seq)
	})

	t.Run("waiting code collision is a conflict", func(t *testing.T) {
		_, err := m.CreateRoom(ctx, models.Room{ID: uuid.New(), JoinCode: "ABC123"}, models.Participant{ID: uuid.New()})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("code is reusable once the room leaves waiting", func(t *testing.T) {
		next := room.Clone()
		next.Status = models.RoomStatusActive
		next.CurrentHolderID = models.IDPtr(creator.ID)
		require.NoError(t, m.CompareAndSwapRoom(ctx, room, next))

		exists, err := m.WaitingCodeExists(ctx, "ABC123")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = m.CreateRoom(ctx, models.Room{ID: uuid.New(), JoinCode: "ABC123"}, models.Participant{ID: uuid.New()})
		assert.NoError(t, err)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := m.GetRoom(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = m.FindWaitingRoom(ctx, "ZZZZZZ")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemoryAddParticipant(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())
	room, _ := newRoom(t, m, "JOIN01")

	b := models.Participant{ID: uuid.New(), DisplayName: "b"}
	added, err := m.AddParticipant(ctx, room.ID, b)
	require.NoError(t, err)
	assert.Equal(t, 2, added.Seq)

	again, err := m.AddParticipant(ctx, room.ID, b)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Seq)

	ps, err := m.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	next := room.Clone()
	next.Status = models.RoomStatusActive
	require.NoError(t, m.CompareAndSwapRoom(ctx, room, next))

	_, err = m.AddParticipant(ctx, room.ID, models.Participant{ID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = m.AddParticipant(ctx, uuid.New(), models.Participant{ID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryConcurrentJoinsGetDistinctSeq(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())
	room, _ := newRoom(t, m, "RACE01")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddParticipant(ctx, room.ID, models.Participant{ID: uuid.New()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ps, err := m.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, ps, 21)
	for i, p := range ps {
		assert.Equal(t, i+1, p.Seq)
	}
}

func TestMemoryCompareAndSwapRoom(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())
	room, creator := newRoom(t, m, "CAS001")
	other := uuid.New()

	active := room.Clone()
	active.Status = models.RoomStatusActive
	active.CurrentHolderID = models.IDPtr(creator.ID)
	require.NoError(t, m.CompareAndSwapRoom(ctx, room, active))

	passed := active.Clone()
	passed.CurrentHolderID = models.IDPtr(other)
	require.NoError(t, m.CompareAndSwapRoom(ctx, active, passed))

	// a second writer that observed the same pre-state loses
	stale := active.Clone()
	stale.CurrentHolderID = nil
	assert.ErrorIs(t, m.CompareAndSwapRoom(ctx, active, stale), store.ErrConflict)

	got, err := m.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.HeldBy(other))

	assert.ErrorIs(t, m.CompareAndSwapRoom(ctx, models.Room{ID: uuid.New()}, models.Room{}), store.ErrNotFound)
}

func guessingRoom(t *testing.T, m *store.Memory) (models.Room, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	room, creator := newRoom(t, m, "GUESS"+uuid.NewString()[:1])
	ids := []uuid.UUID{creator.ID}
	for i := 0; i < 2; i++ {
		p, err := m.AddParticipant(ctx, room.ID, models.Participant{ID: uuid.New()})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	next := room.Clone()
	next.Status = models.RoomStatusGuessing
	next.HolderAtGuessing = models.IDPtr(ids[1])
	require.NoError(t, m.CompareAndSwapRoom(ctx, room, next))
	return next, ids
}

func TestMemoryUpsertGuess(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrite keeps one guess per voter", func(t *testing.T) {
		m := store.NewMemory(clockwork.NewFakeClock())
		room, ids := guessingRoom(t, m)

		first, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[0], GuessedHolderID: ids[1]}, models.GuessPolicyOverwrite)
		require.NoError(t, err)
		second, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[0], GuessedHolderID: ids[2]}, models.GuessPolicyOverwrite)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		gs, err := m.ListGuesses(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, gs, 1)
		assert.Equal(t, ids[2], gs[0].GuessedHolderID)
	})

	t.Run("strict rejects a second guess", func(t *testing.T) {
		m := store.NewMemory(clockwork.NewFakeClock())
		room, ids := guessingRoom(t, m)

		_, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[0], GuessedHolderID: ids[1]}, models.GuessPolicyStrict)
		require.NoError(t, err)
		_, err = m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[0], GuessedHolderID: ids[2]}, models.GuessPolicyStrict)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("only while guessing", func(t *testing.T) {
		m := store.NewMemory(clockwork.NewFakeClock())
		room, creator := newRoom(t, m, "NOGUES")
		_, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: creator.ID, GuessedHolderID: creator.ID}, models.GuessPolicyOverwrite)
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestMemoryFinishRound(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())
	room, ids := guessingRoom(t, m)

	g, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[0], GuessedHolderID: ids[1]}, models.GuessPolicyOverwrite)
	require.NoError(t, err)
	wrong, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: ids[1], GuessedHolderID: ids[2]}, models.GuessPolicyOverwrite)
	require.NoError(t, err)

	ended := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	results, err := m.FinishRound(ctx, room.ID, ended)
	require.NoError(t, err)
	assert.Equal(t, []models.GuessResult{
		{GuessID: g.ID, VoterID: ids[0], IsCorrect: true},
		{GuessID: wrong.ID, VoterID: ids[1], IsCorrect: false},
	}, results)

	// the second scorer loses and nothing is applied twice
	_, err = m.FinishRound(ctx, room.ID, ended)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := m.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, ended, *got.EndedAt)

	scores, err := m.Scores(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 1, scores[0].Total)
	assert.Equal(t, 0, scores[1].Total)

	gs, err := m.ListGuesses(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, gs[0].IsCorrect)
	assert.True(t, *gs[0].IsCorrect)

	history, err := m.History(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Score)

	board, err := m.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, ids[0], board[0].UserID)
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())
	room, ids := guessingRoom(t, m)

	for _, voter := range []uuid.UUID{ids[2], ids[0]} {
		_, err := m.UpsertGuess(ctx, models.Guess{RoomID: room.ID, VoterID: voter, GuessedHolderID: ids[1]}, models.GuessPolicyOverwrite)
		require.NoError(t, err)
	}

	now := time.Now()
	snap, err := store.LoadSnapshot(ctx, m, room.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusGuessing, snap.Room.Status)
	assert.Len(t, snap.Participants, 3)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2]}, snap.Voters)
	assert.Equal(t, now, snap.ObservedAt)
}

func TestMemoryNotifiesChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m := store.NewMemory(clockwork.NewFakeClock())
	room, _ := newRoom(t, m, "NOTIFY")
	_, err := m.AddParticipant(ctx, room.ID, models.Participant{ID: uuid.New()})
	require.NoError(t, err)

	// both writes coalesce into one pending entry
	assert.Equal(t, 1, m.Changes().Pending())
	id, err := m.Changes().Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, room.ID, id)
}

func TestMemoryActiveRoomsOnlyRoundsInProgress(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(clockwork.NewFakeClock())

	waiting, _ := newRoom(t, m, "IDLE01")
	guessing, _ := guessingRoom(t, m)
	finished, _ := guessingRoom(t, m)
	_, err := m.FinishRound(ctx, finished.ID, time.Now())
	require.NoError(t, err)

	active, _ := newRoom(t, m, "LIVE01")
	next := active.Clone()
	next.Status = models.RoomStatusActive
	require.NoError(t, m.CompareAndSwapRoom(ctx, active, next))

	ids, err := m.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{guessing.ID, active.ID}, ids)
	assert.NotContains(t, ids, waiting.ID)
}
