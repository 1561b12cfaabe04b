package channel

import (
	"context"
	"errors"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ChangeFeed yields the ids of rooms whose durable state changed
type ChangeFeed interface {
	Next(ctx context.Context) (uuid.UUID, error)
}

// RoomObserver is told about every room state the relay publishes
type RoomObserver interface {
	Observe(ctx context.Context, room models.Room)
}

// Relay turns store changes into published snapshots. It always reloads the
// latest record, so a burst of writes to one room publishes its final state.
// Publish failures are logged and not retried; the next change republishes.
type Relay struct {
	changes   ChangeFeed
	reader    store.SnapshotReader
	ch        Channel
	clock     clockwork.Clock
	observers []RoomObserver
}

// NewRelay creates a new Relay
func NewRelay(changes ChangeFeed, reader store.SnapshotReader, ch Channel, clock clockwork.Clock, observers ...RoomObserver) *Relay {
	return &Relay{
		changes:   changes,
		reader:    reader,
		ch:        ch,
		clock:     clock,
		observers: observers,
	}
}

// Run relays until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Int("observers", len(r.observers)).Msg("snapshot relay started")

	for {
		roomID, err := r.changes.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("snapshot relay shutting down")
				return nil
			}
			return err
		}
		if err := r.relay(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to relay room")
		}
	}
}

func (r *Relay) relay(ctx context.Context, roomID uuid.UUID) error {
	snap, err := store.LoadSnapshot(ctx, r.reader, roomID, r.clock.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := r.ch.Publish(ctx, *snap); err != nil {
		return err
	}
	for _, o := range r.observers {
		o.Observe(ctx, snap.Room)
	}

	log.Debug().
		Str("room_id", roomID.String()).
		Str("status", string(snap.Room.Status)).
		Int("participants", len(snap.Participants)).
		Int("voters", len(snap.Voters)).
		Msg("relayed snapshot")
	return nil
}
