package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to re-announce every open room
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    "room_changes",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// ActiveRoomLister enumerates rooms with a round in progress.
type ActiveRoomLister interface {
	ActiveRooms(ctx context.Context) ([]uuid.UUID, error)
}

// Listener turns postgres room_changes notifications into Notifier entries.
// Notifications lost while the connection was down are recovered by
// re-announcing every room with a round in progress on reconnect and on the fallback tick.
type Listener struct {
	listener *pq.Listener
	rooms    ActiveRoomLister
	notifier *Notifier
	cfg      ListenerConfig
}

func NewListener(rooms ActiveRoomLister, notifier *Notifier, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener: l,
		rooms:    rooms,
		notifier: notifier,
		cfg:      cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				l.resync(ctx)
				continue
			}
			if err := l.handleNotification(note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			l.resync(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification handles a pg notification whose payload is a room id.
func (l *Listener) handleNotification(extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid room ID in notification: %w", err)
	}
	l.notifier.Notify(id)
	return nil
}

func (l *Listener) resync(ctx context.Context) {
	ids, err := l.rooms.ActiveRooms(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active rooms")
		return
	}
	for _, id := range ids {
		l.notifier.Notify(id)
	}
	if len(ids) > 0 {
		log.Debug().Int("rooms", len(ids)).Msg("re-announced active rooms")
	}
}
