package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memberRecord struct {
	participant models.Participant
	score       int
}

// Memory is an in-process implementation of the room store. Every write is
// atomic under one lock and announces the changed room on the Notifier after
// it is applied.
type Memory struct {
	mu           sync.RWMutex
	rooms        map[uuid.UUID]models.Room
	participants map[uuid.UUID][]memberRecord
	guesses      map[uuid.UUID]map[uuid.UUID]models.Guess
	totals       map[uuid.UUID]int
	names        map[uuid.UUID]string

	clock    clockwork.Clock
	notifier *Notifier
}

// NewMemory creates an empty Memory store
func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{
		rooms:        make(map[uuid.UUID]models.Room),
		participants: make(map[uuid.UUID][]memberRecord),
		guesses:      make(map[uuid.UUID]map[uuid.UUID]models.Guess),
		totals:       make(map[uuid.UUID]int),
		names:        make(map[uuid.UUID]string),
		clock:        clock,
		notifier:     NewNotifier(),
	}
}

// Changes returns the notifier that receives the id of every changed room.
func (m *Memory) Changes() *Notifier {
	return m.notifier
}

// CreateRoom inserts a waiting room and its creator as the first participant.
// A waiting room with the same join code is a conflict.
func (m *Memory) CreateRoom(ctx context.Context, room models.Room, creator models.Participant) (*models.Room, error) {
	m.mu.Lock()
	for _, r := range m.rooms {
		if r.Status == models.RoomStatusWaiting && r.JoinCode == room.JoinCode {
			m.mu.Unlock()
			return nil, ErrConflict
		}
	}
	if _, ok := m.rooms[room.ID]; ok {
		m.mu.Unlock()
		return nil, ErrConflict
	}

	if room.Status == "" {
		room.Status = models.RoomStatusWaiting
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = m.clock.Now()
	}
	stored := room.Clone()
	m.rooms[room.ID] = stored

	creator.Seq = 1
	if creator.JoinedAt.IsZero() {
		creator.JoinedAt = stored.CreatedAt
	}
	m.participants[room.ID] = []memberRecord{{participant: creator}}
	m.rememberName(creator)
	m.mu.Unlock()

	m.notifier.Notify(room.ID)
	out := stored.Clone()
	return &out, nil
}

// GetRoom returns a copy of the stored room
func (m *Memory) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := r.Clone()
	return &out, nil
}

// FindWaitingRoom looks up the waiting room that owns code
func (m *Memory) FindWaitingRoom(ctx context.Context, code string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rooms {
		if r.Status == models.RoomStatusWaiting && r.JoinCode == code {
			out := r.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// WaitingCodeExists reports whether a waiting room already uses code
func (m *Memory) WaitingCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := m.FindWaitingRoom(ctx, code)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// AddParticipant appends p to the room's roster if the room is still waiting.
// Joining a waiting room twice returns the existing membership unchanged.
func (m *Memory) AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) (*models.Participant, error) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	if room.Status != models.RoomStatusWaiting {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	members := m.participants[roomID]
	for _, rec := range members {
		if rec.participant.ID == p.ID {
			m.mu.Unlock()
			existing := rec.participant
			return &existing, nil
		}
	}

	p.Seq = 1
	if n := len(members); n > 0 {
		p.Seq = members[n-1].participant.Seq + 1
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = m.clock.Now()
	}
	m.participants[roomID] = append(members, memberRecord{participant: p})
	m.rememberName(p)
	m.mu.Unlock()

	m.notifier.Notify(roomID)
	return &p, nil
}

// ListParticipants returns the roster in join order
func (m *Memory) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rooms[roomID]; !ok {
		return nil, ErrNotFound
	}
	members := m.participants[roomID]
	out := make([]models.Participant, 0, len(members))
	for _, rec := range members {
		out = append(out, rec.participant)
	}
	sortParticipants(out)
	return out, nil
}

// CompareAndSwapRoom replaces the room with next only if the stored status and
// holder still equal prev's.
func (m *Memory) CompareAndSwapRoom(ctx context.Context, prev, next models.Room) error {
	m.mu.Lock()
	cur, ok := m.rooms[prev.ID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if cur.Status != prev.Status || !models.SameID(cur.CurrentHolderID, prev.CurrentHolderID) {
		m.mu.Unlock()
		return ErrConflict
	}

	stored := next.Clone()
	stored.ID = cur.ID
	stored.JoinCode = cur.JoinCode
	stored.CreatorID = cur.CreatorID
	stored.CreatedAt = cur.CreatedAt
	m.rooms[cur.ID] = stored
	m.mu.Unlock()

	m.notifier.Notify(cur.ID)
	return nil
}

// UpsertGuess records g while the room is guessing. Under the strict policy a
// second guess from the same voter is ErrDuplicate; under overwrite it
// replaces the target of the first and keeps its id.
func (m *Memory) UpsertGuess(ctx context.Context, g models.Guess, policy models.GuessPolicy) (*models.Guess, error) {
	m.mu.Lock()
	room, ok := m.rooms[g.RoomID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if room.Status != models.RoomStatusGuessing {
		m.mu.Unlock()
		return nil, ErrConflict
	}

	byVoter := m.guesses[g.RoomID]
	if byVoter == nil {
		byVoter = make(map[uuid.UUID]models.Guess)
		m.guesses[g.RoomID] = byVoter
	}
	if existing, ok := byVoter[g.VoterID]; ok {
		if policy == models.GuessPolicyStrict {
			m.mu.Unlock()
			return nil, ErrDuplicate
		}
		g.ID = existing.ID
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.IsCorrect = nil
	byVoter[g.VoterID] = g
	m.mu.Unlock()

	m.notifier.Notify(g.RoomID)
	return &g, nil
}

// ListGuesses returns the room's guesses ordered by voter join order
func (m *Memory) ListGuesses(ctx context.Context, roomID uuid.UUID) ([]models.Guess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rooms[roomID]; !ok {
		return nil, ErrNotFound
	}
	seq := make(map[uuid.UUID]int)
	for _, rec := range m.participants[roomID] {
		seq[rec.participant.ID] = rec.participant.Seq
	}

	out := make([]models.Guess, 0, len(m.guesses[roomID]))
	for _, g := range m.guesses[roomID] {
		if g.IsCorrect != nil {
			v := *g.IsCorrect
			g.IsCorrect = &v
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if seq[out[i].VoterID] != seq[out[j].VoterID] {
			return seq[out[i].VoterID] < seq[out[j].VoterID]
		}
		return out[i].VoterID.String() < out[j].VoterID.String()
	})
	return out, nil
}

// FinishRound flips the room from guessing to finished and marks every guess
// against the holder frozen at guessing entry, all in one critical section so
// a guess cannot change between being resolved and being scored. A room that
// is no longer guessing is a conflict and nothing is written.
func (m *Memory) FinishRound(ctx context.Context, roomID uuid.UUID, endedAt time.Time) ([]models.GuessResult, error) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if room.Status != models.RoomStatusGuessing {
		m.mu.Unlock()
		return nil, ErrConflict
	}

	room.Status = models.RoomStatusFinished
	room.EndedAt = &endedAt
	m.rooms[roomID] = room

	byVoter := m.guesses[roomID]
	members := m.participants[roomID]
	results := make([]models.GuessResult, 0, len(byVoter))
	for i := range members {
		g, ok := byVoter[members[i].participant.ID]
		if !ok {
			continue
		}
		correct := room.GuessCorrect(g.GuessedHolderID)
		g.IsCorrect = &correct
		byVoter[g.VoterID] = g
		results = append(results, models.GuessResult{GuessID: g.ID, VoterID: g.VoterID, IsCorrect: correct})
		if !correct {
			continue
		}
		members[i].score++
		m.totals[g.VoterID]++
	}
	m.mu.Unlock()

	m.notifier.Notify(roomID)
	return results, nil
}

// Scores returns cumulative totals for the given users; unknown users score 0
func (m *Memory) Scores(ctx context.Context, userIDs []uuid.UUID) ([]models.ScoreEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ScoreEntry, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, models.ScoreEntry{UserID: id, DisplayName: m.names[id], Total: m.totals[id]})
	}
	return out, nil
}

// History returns the rooms userID joined, newest first
func (m *Memory) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.HistoryEntry
	for roomID, members := range m.participants {
		for _, rec := range members {
			if rec.participant.ID != userID {
				continue
			}
			r := m.rooms[roomID]
			out = append(out, models.HistoryEntry{
				RoomID:    r.ID,
				JoinCode:  r.JoinCode,
				Status:    r.Status,
				CreatedAt: r.CreatedAt,
				JoinedAt:  rec.participant.JoinedAt,
				Score:     rec.score,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Leaderboard returns the highest cumulative totals, ties broken by user id
func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]models.ScoreEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ScoreEntry, 0, len(m.totals))
	for id, total := range m.totals {
		out = append(out, models.ScoreEntry{UserID: id, DisplayName: m.names[id], Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActiveRooms returns the ids of rooms with a round in progress
func (m *Memory) ActiveRooms(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []uuid.UUID
	for id, r := range m.rooms {
		if r.Status == models.RoomStatusActive || r.Status == models.RoomStatusGuessing {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) rememberName(p models.Participant) {
	if p.DisplayName != "" {
		m.names[p.ID] = p.DisplayName
	}
}
