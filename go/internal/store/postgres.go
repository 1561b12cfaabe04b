package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/sqlutil"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const roomColumns = `id, join_code, creator_id, status, current_holder_id, holder_at_guessing, created_at, started_at, ended_at`

// Postgres is the durable room store. Change notifications are emitted by
// triggers on the room tables and picked up by a Listener.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		r                 models.Room
		status            string
		holder, atGuess   uuid.NullUUID
		started, finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.JoinCode, &r.CreatorID, &status, &holder, &atGuess, &r.CreatedAt, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = models.RoomStatus(status)
	r.CurrentHolderID = sqlutil.FromNullUUID(holder)
	r.HolderAtGuessing = sqlutil.FromNullUUID(atGuess)
	r.StartedAt = sqlutil.FromSqlTime(started)
	r.EndedAt = sqlutil.FromSqlTime(finished)
	return &r, nil
}

// CreateRoom inserts a waiting room and its creator in one transaction
func (p *Postgres) CreateRoom(ctx context.Context, room models.Room, creator models.Participant) (*models.Room, error) {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if creator.JoinedAt.IsZero() {
		creator.JoinedAt = room.CreatedAt
	}

	var created *models.Room
	err := sqlutil.Run(ctx, p.db, nil, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO rooms (id, join_code, creator_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+roomColumns,
			room.ID, room.JoinCode, room.CreatorID, string(models.RoomStatusWaiting), room.CreatedAt)
		r, err := scanRoom(row)
		if err != nil {
			return err
		}
		created = r

		_, err = tx.ExecContext(ctx, `
			INSERT INTO participants (room_id, user_id, display_name, seq, joined_at, metadata)
			VALUES ($1, $2, $3, 1, $4, $5)`,
			room.ID, creator.ID, creator.DisplayName, creator.JoinedAt, sqlutil.ToNullRawMessage(creator.Metadata))
		return err
	})
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return created, nil
}

// GetRoom fetches a room by id
func (p *Postgres) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

// FindWaitingRoom looks up the waiting room that owns code
func (p *Postgres) FindWaitingRoom(ctx context.Context, code string) (*models.Room, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE join_code = $1 AND status = 'waiting'`, code)
	return scanRoom(row)
}

// WaitingCodeExists reports whether a waiting room already uses code
func (p *Postgres) WaitingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE join_code = $1 AND status = 'waiting')`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check join code: %w", err)
	}
	return exists, nil
}

// AddParticipant appends pt to a waiting room. The room row is locked so a
// concurrent start cannot interleave with the append, and seq assignment stays
// gap free.
func (p *Postgres) AddParticipant(ctx context.Context, roomID uuid.UUID, pt models.Participant) (*models.Participant, error) {
	var out *models.Participant
	err := sqlutil.Run(ctx, p.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.RoomStatus(status) != models.RoomStatusWaiting {
			return ErrConflict
		}

		existing, err := scanParticipant(tx.QueryRowContext(ctx, `
			SELECT user_id, display_name, seq, joined_at, metadata
			FROM participants WHERE room_id = $1 AND user_id = $2`, roomID, pt.ID))
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if pt.JoinedAt.IsZero() {
			pt.JoinedAt = time.Now().UTC()
		}
		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM participants WHERE room_id = $1`, roomID).Scan(&seq); err != nil {
			return err
		}
		inserted, err := scanParticipant(tx.QueryRowContext(ctx, `
			INSERT INTO participants (room_id, user_id, display_name, seq, joined_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING user_id, display_name, seq, joined_at, metadata`,
			roomID, pt.ID, pt.DisplayName, seq, pt.JoinedAt, sqlutil.ToNullRawMessage(pt.Metadata)))
		if err != nil {
			return err
		}
		out = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	return out, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		pt       models.Participant
		metadata pqtype.NullRawMessage
	)
	if err := row.Scan(&pt.ID, &pt.DisplayName, &pt.Seq, &pt.JoinedAt, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	pt.Metadata = sqlutil.FromNullRawMessage(metadata)
	return &pt, nil
}

// ListParticipants returns the roster in join order
func (p *Postgres) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	if _, err := p.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, display_name, seq, joined_at, metadata
		FROM participants WHERE room_id = $1 ORDER BY seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		pt, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pt)
	}
	return out, rows.Err()
}

// CompareAndSwapRoom writes next only if the stored status and holder still
// equal prev's.
func (p *Postgres) CompareAndSwapRoom(ctx context.Context, prev, next models.Room) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rooms
		SET status = $3, current_holder_id = $4, holder_at_guessing = $5, started_at = $6, ended_at = $7
		WHERE id = $1 AND status = $2 AND current_holder_id IS NOT DISTINCT FROM $8`,
		prev.ID, string(prev.Status),
		string(next.Status),
		sqlutil.ToNullUUID(next.CurrentHolderID),
		sqlutil.ToNullUUID(next.HolderAtGuessing),
		sqlutil.ToSqlTime(next.StartedAt),
		sqlutil.ToSqlTime(next.EndedAt),
		sqlutil.ToNullUUID(prev.CurrentHolderID),
	)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := p.GetRoom(ctx, prev.ID); err != nil {
		return err
	}
	return ErrConflict
}

// UpsertGuess records g while the room is guessing. The room row is share
// locked so FinishRound cannot commit between the phase check and the write.
func (p *Postgres) UpsertGuess(ctx context.Context, g models.Guess, policy models.GuessPolicy) (*models.Guess, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.IsCorrect = nil

	err := sqlutil.Run(ctx, p.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM rooms WHERE id = $1 FOR SHARE`, g.RoomID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.RoomStatus(status) != models.RoomStatusGuessing {
			return ErrConflict
		}

		query := `
			INSERT INTO guesses (id, game_id, user_id, guessed_user_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id`
		if policy != models.GuessPolicyStrict {
			query = `
			INSERT INTO guesses (id, game_id, user_id, guessed_user_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (game_id, user_id) DO UPDATE SET guessed_user_id = EXCLUDED.guessed_user_id
			RETURNING id`
		}
		return tx.QueryRowContext(ctx, query, g.ID, g.RoomID, g.VoterID, g.GuessedHolderID).Scan(&g.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
			return nil, err
		case sqlutil.IsUniqueViolation(err):
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to upsert guess: %w", err)
	}
	return &g, nil
}

// ListGuesses returns the room's guesses ordered by voter join order
func (p *Postgres) ListGuesses(ctx context.Context, roomID uuid.UUID) ([]models.Guess, error) {
	if _, err := p.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT g.id, g.game_id, g.user_id, g.guessed_user_id, g.is_correct
		FROM guesses g
		LEFT JOIN participants pt ON pt.room_id = g.game_id AND pt.user_id = g.user_id
		WHERE g.game_id = $1
		ORDER BY pt.seq NULLS LAST, g.user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}
	defer rows.Close()

	var out []models.Guess
	for rows.Next() {
		var (
			g       models.Guess
			correct sql.NullBool
		)
		if err := rows.Scan(&g.ID, &g.RoomID, &g.VoterID, &g.GuessedHolderID, &correct); err != nil {
			return nil, err
		}
		if correct.Valid {
			v := correct.Bool
			g.IsCorrect = &v
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// FinishRound flips guessing to finished, marks every guess against the
// holder frozen at guessing entry and scores the correct voters in one
// transaction. The flip locks the room row, and UpsertGuess share-locks it, so
// no guess can change while it is being resolved. If the flip matches no row
// another scorer won and the transaction rolls back with ErrConflict.
func (p *Postgres) FinishRound(ctx context.Context, roomID uuid.UUID, endedAt time.Time) ([]models.GuessResult, error) {
	var results []models.GuessResult
	err := sqlutil.Run(ctx, p.db, nil, func(tx *sql.Tx) error {
		results = nil
		res, err := tx.ExecContext(ctx, `
			UPDATE rooms SET status = 'finished', ended_at = $2
			WHERE id = $1 AND status = 'guessing'`, roomID, endedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		rows, err := tx.QueryContext(ctx, `
			UPDATE guesses g
			SET is_correct = (g.guessed_user_id IS NOT DISTINCT FROM r.holder_at_guessing)
			FROM rooms r
			WHERE r.id = g.game_id AND g.game_id = $1
			RETURNING g.id, g.user_id, g.is_correct`, roomID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var r models.GuessResult
			if err := rows.Scan(&r.GuessID, &r.VoterID, &r.IsCorrect); err != nil {
				rows.Close()
				return err
			}
			results = append(results, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range results {
			if !r.IsCorrect {
				continue
			}
			var name string
			err := tx.QueryRowContext(ctx, `
				UPDATE participants SET score = score + 1
				WHERE room_id = $1 AND user_id = $2
				RETURNING display_name`, roomID, r.VoterID).Scan(&name)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scores (user_id, display_name, total, updated_at)
				VALUES ($1, $2, 1, $3)
				ON CONFLICT (user_id) DO UPDATE
				SET total = scores.total + 1,
				    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), scores.display_name),
				    updated_at = EXCLUDED.updated_at`,
				r.VoterID, name, endedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to finish round: %w", err)
	}
	return results, nil
}

// Scores returns cumulative totals for the given users; unknown users score 0
func (p *Postgres) Scores(ctx context.Context, userIDs []uuid.UUID) ([]models.ScoreEntry, error) {
	out := make([]models.ScoreEntry, 0, len(userIDs))
	for _, id := range userIDs {
		entry := models.ScoreEntry{UserID: id}
		err := p.db.QueryRowContext(ctx,
			`SELECT display_name, total FROM scores WHERE user_id = $1`, id).Scan(&entry.DisplayName, &entry.Total)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to read score: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// ActiveRooms returns the ids of rooms with a round in progress. Waiting
// rooms are left out: nothing server-side acts on them, and abandoned ones
// would otherwise grow every resync.
func (p *Postgres) ActiveRooms(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM rooms WHERE status IN ('active', 'guessing')`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
