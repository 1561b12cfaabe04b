package session

import (
	"context"
	"sync"
	"time"

	"github.com/ankianan/passingstone/go/internal/channel"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DefaultInboxSize = 64

type Config struct {
	Self      uuid.UUID
	RoomID    uuid.UUID
	Duration  time.Duration // Round countdown length
	InboxSize int
}

// Actor owns one client's view of one room. Snapshots are queued in a bounded
// inbox (the oldest is dropped when full) and applied one at a time. While
// the round is active the actor runs its own countdown and reports expiry;
// every client does this and the first report wins.
type Actor struct {
	cfg     Config
	clock   clockwork.Clock
	expirer round.Expirer
	onView  func(models.RoomSnapshot, View)

	inbox chan models.RoomSnapshot

	mu      sync.RWMutex
	view    View
	hasView bool
	dropped int

	timer     clockwork.Timer
	armedFor  time.Time
	expiredAt time.Time
}

// NewActor creates an Actor. onView receives every applied snapshot with the
// view derived from it and may be nil.
func NewActor(cfg Config, clock clockwork.Clock, expirer round.Expirer, onView func(models.RoomSnapshot, View)) *Actor {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	return &Actor{
		cfg:     cfg,
		clock:   clock,
		expirer: expirer,
		onView:  onView,
		inbox:   make(chan models.RoomSnapshot, cfg.InboxSize),
	}
}

// Deliver queues a snapshot without blocking
func (a *Actor) Deliver(snap models.RoomSnapshot) {
	for {
		select {
		case a.inbox <- snap:
			return
		default:
		}
		select {
		case <-a.inbox:
			a.mu.Lock()
			a.dropped++
			a.mu.Unlock()
		default:
		}
	}
}

// Pump forwards a channel subscription into the inbox until either ends
func (a *Actor) Pump(ctx context.Context, sub channel.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			a.Deliver(snap)
		}
	}
}

// View returns the latest derived view
func (a *Actor) View() (View, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view, a.hasView
}

// Dropped returns how many snapshots were discarded by a full inbox
func (a *Actor) Dropped() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dropped
}

// Run processes the inbox until ctx is cancelled
func (a *Actor) Run(ctx context.Context) error {
	defer a.disarm()

	for {
		var timerC <-chan time.Time
		if a.timer != nil {
			timerC = a.timer.Chan()
		}

		select {
		case <-ctx.Done():
			return nil
		case snap := <-a.inbox:
			a.apply(ctx, snap)
		case <-timerC:
			a.timer = nil
			a.expiredAt = a.armedFor
			if _, err := a.expirer.Expire(ctx, a.cfg.RoomID); err != nil {
				log.Error().
					Err(err).
					Str("room_id", a.cfg.RoomID.String()).
					Str("participant_id", a.cfg.Self.String()).
					Msg("failed to report round expiry")
			}
		}
	}
}

func (a *Actor) apply(ctx context.Context, snap models.RoomSnapshot) {
	if snap.Room.ID != a.cfg.RoomID {
		return
	}

	a.mu.RLock()
	current, has := a.view, a.hasView
	a.mu.RUnlock()
	if has && stale(current, snap) {
		return
	}

	v := Derive(snap, a.cfg.Self, a.cfg.Duration, a.clock.Now())

	a.mu.Lock()
	a.view = v
	a.hasView = true
	a.mu.Unlock()

	a.countdown(snap.Room)
	if a.onView != nil {
		a.onView(snap, v)
	}
}

// stale reports whether snap is older than what the view already shows:
// an earlier phase, or the same phase read before the current view.
func stale(current View, snap models.RoomSnapshot) bool {
	cur, next := round.PhaseIndex(current.Status), round.PhaseIndex(snap.Room.Status)
	if next != cur {
		return next < cur
	}
	return snap.ObservedAt.Before(current.ObservedAt)
}

func (a *Actor) countdown(room models.Room) {
	deadline, ok := round.Deadline(room, a.cfg.Duration)
	if room.Status != models.RoomStatusActive || !ok {
		a.disarm()
		return
	}
	if deadline.Equal(a.armedFor) && (a.timer != nil || deadline.Equal(a.expiredAt)) {
		return
	}

	a.disarm()
	wait := deadline.Sub(a.clock.Now())
	if wait < 0 {
		wait = 0
	}
	a.timer = a.clock.NewTimer(wait)
	a.armedFor = deadline
}

func (a *Actor) disarm() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
