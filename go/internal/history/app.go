// Package history is the read side of finished and ongoing rooms: what a
// user played and the overall leaderboard.
package history

import (
	"context"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// HistoryRepository defines what the history app needs from storage
type HistoryRepository interface {
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]models.ScoreEntry, error)
}

// App handles history queries
type App struct {
	repo HistoryRepository
}

// NewApp creates a new history App
func NewApp(repo HistoryRepository) *App {
	return &App{
		repo: repo,
	}
}

// ForUser lists the rooms userID joined, newest first
func (a *App) ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required: %w", models.ErrInvalidArgument)
	}
	entries, err := a.repo.History(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// Leaderboard lists the best cumulative scores
func (a *App) Leaderboard(ctx context.Context, limit int) ([]models.ScoreEntry, error) {
	entries, err := a.repo.Leaderboard(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	if entries == nil {
		entries = []models.ScoreEntry{}
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
