package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository serves the read side straight from Postgres through a pgx pool
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository opens a pool against connString and checks it is reachable
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

// History returns the rooms userID joined, newest first
func (r *Repository) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.join_code, r.status, r.created_at, p.joined_at, p.score
		FROM participants p
		JOIN rooms r ON r.id = p.room_id
		WHERE p.user_id = $1
		ORDER BY p.joined_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.HistoryEntry, error) {
		var e models.HistoryEntry
		var status string
		err := row.Scan(&e.RoomID, &e.JoinCode, &status, &e.CreatedAt, &e.JoinedAt, &e.Score)
		e.Status = models.RoomStatus(status)
		return e, err
	})
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

// Leaderboard returns the highest cumulative totals, ties broken by user id
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]models.ScoreEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, display_name, total
		FROM scores
		ORDER BY total DESC, user_id::text ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScoreEntry, error) {
		var e models.ScoreEntry
		err := row.Scan(&e.UserID, &e.DisplayName, &e.Total)
		return e, err
	})
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

func translate(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("failed to read rows: %w", err)
}
