//go:build integration

package history_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/game"
	"github.com/ankianan/passingstone/go/internal/history"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/ankianan/passingstone/go/internal/store/migrations"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var shortRound = round.Config{Duration: 300 * time.Millisecond, SkewTolerance: 50 * time.Millisecond}

var (
	pgStore *store.Postgres
	repo    *history.Repository
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("passingstone"),
		postgres.WithUsername("passingstone"),
		postgres.WithPassword("passingstone"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	if err := migrations.Migrate(dsn); err != nil {
		panic(err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		panic(err)
	}
	pgStore = store.NewPostgres(db)

	repo, err = history.NewRepository(ctx, dsn)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	repo.Close()
	db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRepositoryReadsFinishedRound(t *testing.T) {
	ctx := context.Background()
	// The postgres store stamps rows with wall time, so the round clock must be real
	games := game.NewApp(pgStore, clockwork.NewRealClock(), game.Config{
		Round:       shortRound,
		GuessPolicy: models.GuessPolicyOverwrite,
	})
	ana, bo := uuid.New(), uuid.New()

	snap, err := games.CreateRoom(ctx, game.CreateRoomRequest{CreatorID: ana, DisplayName: "ana"})
	require.NoError(t, err)
	roomID := snap.Room.ID
	_, err = games.JoinRoom(ctx, game.JoinRoomRequest{Code: snap.Room.JoinCode, ParticipantID: bo, DisplayName: "bo"})
	require.NoError(t, err)
	_, err = games.StartRound(ctx, roomID, ana)
	require.NoError(t, err)

	time.Sleep(shortRound.Duration)
	_, err = games.RoundExpired(ctx, roomID)
	require.NoError(t, err)

	_, err = games.SubmitGuess(ctx, roomID, ana, bo)
	require.NoError(t, err)
	_, err = games.SubmitGuess(ctx, roomID, bo, ana)
	require.NoError(t, err)

	app := history.NewApp(repo)
	entries, err := app.ForUser(ctx, bo, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, roomID, entries[0].RoomID)
	assert.Equal(t, models.RoomStatusFinished, entries[0].Status)
	assert.Equal(t, 1, entries[0].Score)

	board, err := app.Leaderboard(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, e := range board {
		if e.UserID == bo {
			found = true
			assert.Equal(t, "bo", e.DisplayName)
			assert.Equal(t, 1, e.Total)
		}
		assert.NotEqual(t, ana, e.UserID)
	}
	assert.True(t, found)
}
