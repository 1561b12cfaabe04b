package round

import (
	"context"
	"sync"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Expirer ends the active phase of a room
type Expirer interface {
	Expire(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
}

type roomTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// Scheduler is the server-side backstop for round expiry. Clients run their
// own countdowns; the scheduler makes sure a room still reaches guessing when
// nobody is connected. It keeps one one-shot timer per active room and hands
// fired rooms to a small worker pool.
type Scheduler struct {
	expirer  Expirer
	clock    clockwork.Clock
	duration time.Duration

	numWorkers int
	workCh     chan uuid.UUID

	activeTimers   map[uuid.UUID]roomTimer
	activeTimersMu sync.Mutex

	// lastScheduled holds the start time each room's timer was armed for
	lastScheduled   map[uuid.UUID]time.Time
	lastScheduledMu sync.Mutex

	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// NewScheduler creates a new expiry Scheduler
func NewScheduler(expirer Expirer, clock clockwork.Clock, duration time.Duration, numWorkers int) *Scheduler {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Scheduler{
		expirer:       expirer,
		clock:         clock,
		duration:      duration,
		numWorkers:    numWorkers,
		workCh:        make(chan uuid.UUID, numWorkers*2),
		activeTimers:  make(map[uuid.UUID]roomTimer),
		lastScheduled: make(map[uuid.UUID]time.Time),
		inFlight:      make(map[uuid.UUID]bool),
	}
}

// Observe arms, keeps or cancels the timer of a room based on its latest
// state. It is safe to call with every snapshot of every room.
func (s *Scheduler) Observe(ctx context.Context, room models.Room) {
	if room.Status != models.RoomStatusActive || room.StartedAt == nil {
		s.cancelTimer(room.ID)
		return
	}

	baseTime := *room.StartedAt

	// Base-time idempotency guard: the same round is only armed once
	s.lastScheduledMu.Lock()
	if lastBase, exists := s.lastScheduled[room.ID]; exists && lastBase.Equal(baseTime) {
		s.lastScheduledMu.Unlock()
		return
	}
	s.lastScheduled[room.ID] = baseTime
	s.lastScheduledMu.Unlock()

	deadline := baseTime.Add(s.duration)
	wait := deadline.Sub(s.clock.Now())
	if wait <= 0 {
		// Overdue rooms are not remembered, so the next observation retries
		// if this expiry fails or the work channel is full
		s.forget(room.ID)
		s.enqueue(room.ID)
		return
	}

	rt := roomTimer{timer: s.clock.NewTimer(wait), stop: make(chan struct{})}
	s.replaceTimer(room.ID, rt)

	go func(id uuid.UUID, rt roomTimer) {
		select {
		case <-rt.timer.Chan():
			s.removeTimer(id, rt)
			s.forget(id)
			s.enqueue(id)
		case <-rt.stop:
		case <-ctx.Done():
			stopAndDrainTimer(rt.timer)
			s.removeTimer(id, rt)
		}
	}(room.ID, rt)

	log.Debug().
		Str("room_id", room.ID.String()).
		Time("deadline", deadline).
		Dur("duration", wait).
		Msg("scheduled expiry timer")
}

// Pending returns the number of armed timers
func (s *Scheduler) Pending() int {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	return len(s.activeTimers)
}

// Run processes fired timers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Int("workers", s.numWorkers).
		Dur("round_duration", s.duration).
		Msg("expiry scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i)
	}

	<-ctx.Done()
	wg.Wait()

	s.activeTimersMu.Lock()
	for id, rt := range s.activeTimers {
		stopAndDrainTimer(rt.timer)
		close(rt.stop)
		log.Debug().Str("room_id", id.String()).Msg("cancelled timer on shutdown")
	}
	s.activeTimers = make(map[uuid.UUID]roomTimer)
	s.activeTimersMu.Unlock()

	log.Info().Msg("expiry scheduler stopped")
	return nil
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-s.workCh:
			if !s.markInFlight(roomID) {
				continue
			}
			if _, err := s.expirer.Expire(ctx, roomID); err != nil {
				log.Error().
					Err(err).
					Str("room_id", roomID.String()).
					Int("worker_id", workerID).
					Msg("expiry failed")
			}
			s.clearInFlight(roomID)
		}
	}
}

func (s *Scheduler) enqueue(roomID uuid.UUID) {
	select {
	case s.workCh <- roomID:
		log.Debug().Str("room_id", roomID.String()).Msg("timer fired - enqueued for expiry")
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("timer fired but work channel full")
	}
}

func (s *Scheduler) markInFlight(roomID uuid.UUID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[roomID] {
		return false
	}
	s.inFlight[roomID] = true
	return true
}

func (s *Scheduler) clearInFlight(roomID uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, roomID)
	s.inFlightMu.Unlock()
}

// replaceTimer swaps in a new timer for a room, stopping the old one first.
func (s *Scheduler) replaceTimer(roomID uuid.UUID, rt roomTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if existing, ok := s.activeTimers[roomID]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.stop)
	}
	s.activeTimers[roomID] = rt
}

// cancelTimer stops a room's timer once it leaves the active phase.
func (s *Scheduler) cancelTimer(roomID uuid.UUID) {
	s.activeTimersMu.Lock()
	if rt, ok := s.activeTimers[roomID]; ok {
		stopAndDrainTimer(rt.timer)
		close(rt.stop)
		delete(s.activeTimers, roomID)
		log.Debug().Str("room_id", roomID.String()).Msg("cancelled expiry timer")
	}
	s.activeTimersMu.Unlock()

	s.forget(roomID)
}

// forget drops the armed start time so the room can be scheduled again
func (s *Scheduler) forget(roomID uuid.UUID) {
	s.lastScheduledMu.Lock()
	delete(s.lastScheduled, roomID)
	s.lastScheduledMu.Unlock()
}

// removeTimer forgets rt if it is still the room's current timer.
func (s *Scheduler) removeTimer(roomID uuid.UUID, rt roomTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if cur, ok := s.activeTimers[roomID]; ok && cur.stop == rt.stop {
		delete(s.activeTimers, roomID)
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
