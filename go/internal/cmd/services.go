package main

import (
	"context"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/channel"
	"github.com/ankianan/passingstone/go/internal/config"
	"github.com/ankianan/passingstone/go/internal/dbconfig"
	"github.com/ankianan/passingstone/go/internal/game"
	"github.com/ankianan/passingstone/go/internal/gateway"
	"github.com/ankianan/passingstone/go/internal/history"
	"github.com/ankianan/passingstone/go/internal/presence"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Game        *game.Service
	Gateway     *gateway.Service
	Presence    *gateway.PresenceHandler // nil unless presence is enabled
	Interceptor *game.SessionInterceptor

	relay     *channel.Relay
	scheduler *round.Scheduler
	listener  *store.Listener

	closers []func() error
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Store → change feed → relay → channel → gateway, with the game app on top
	clock := clockwork.NewRealClock()
	s := &Services{}

	var (
		repo        game.GameRepository
		changes     channel.ChangeFeed
		historyRepo history.HistoryRepository
	)

	switch cfg.Store.Driver {
	case config.StorePostgres:
		dbConfig := dbconfig.NewConfigFromEnv()
		database, err := setupDatabase(ctx, dbConfig)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, database.Close)

		pg := store.NewPostgres(database)
		notifier := store.NewNotifier()
		listenerCfg := store.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dbConfig.DSN()
		s.listener, err = store.NewListener(pg, notifier, listenerCfg)
		if err != nil {
			s.Close()
			return nil, err
		}

		historyPG, err := history.NewRepository(ctx, dbConfig.DSN())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() error { historyPG.Close(); return nil })

		repo, changes, historyRepo = pg, notifier, historyPG

	default:
		mem := store.NewMemory(clock)
		repo, changes, historyRepo = mem, mem.Changes(), mem
	}

	ch, err := setupChannel(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	gameApp := game.NewApp(repo, clock, game.Config{
		Round: round.Config{
			Duration:      cfg.Game.RoundDuration,
			SkewTolerance: cfg.Game.SkewTolerance,
		},
		GuessPolicy:    cfg.Game.GuessPolicy,
		JoinCodeLength: cfg.Game.JoinCodeLength,
	})
	historyApp := history.NewApp(historyRepo)

	s.scheduler = round.NewScheduler(gameApp, clock, cfg.Game.RoundDuration, cfg.Game.ExpiryWorkers)
	s.relay = channel.NewRelay(changes, repo, ch, clock, s.scheduler)

	gwConfig := gateway.DefaultConfig()
	gwConfig.ConnectionConfig.RoundDuration = cfg.Game.RoundDuration
	gwConfig.ConnectionConfig.SendBufferSize = cfg.Game.InboxSize
	s.Gateway = gateway.NewService(gwConfig, ch, clock, gameApp)
	if cfg.Presence.Enabled {
		s.Presence = setupPresence(cfg, gwConfig.ConnectionConfig, ch, clock)
	}

	s.Game = game.NewService(gameApp, historyApp)
	s.Interceptor = game.NewSessionInterceptor(game.RateLimitConfig{
		PerSecond: cfg.Server.RatePerSec,
		Burst:     cfg.Server.RateBurst,
		IdleTTL:   game.DefaultRateLimitConfig().IdleTTL,
	}, clock)

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("channel", cfg.ChannelDriver()).
		Dur("round_duration", cfg.Game.RoundDuration).
		Str("guess_policy", string(cfg.Game.GuessPolicy)).
		Bool("presence", cfg.Presence.Enabled).
		Msg("services ready")
	return s, nil
}

func setupChannel(ctx context.Context, cfg *config.Config, s *Services) (channel.Channel, error) {
	if cfg.ChannelDriver() == config.ChannelMemory {
		return channel.NewMemory(channel.DefaultBufferSize), nil
	}

	natsCfg := channel.DefaultNATSConfig()
	natsCfg.URL = cfg.NATS.URL
	if cfg.NATS.Stream != "" {
		natsCfg.StreamName = cfg.NATS.Stream
	}
	if cfg.NATS.SubjectPrefix != "" {
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	}

	nc, err := channel.Connect(natsCfg)
	if err != nil {
		return nil, err
	}
	ch, err := channel.NewNATS(ctx, nc, natsCfg)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to set up snapshot stream: %w", err)
	}
	s.closers = append(s.closers, ch.Close)
	return ch, nil
}

// setupPresence shares the NATS connection of the snapshot channel when there
// is one, so presence reaches members on every server instance
func setupPresence(cfg *config.Config, connCfg gateway.ConnectionConfig, ch channel.Channel, clock clockwork.Clock) *gateway.PresenceHandler {
	var transport presence.Transport = presence.NewMemoryTransport()
	if n, ok := ch.(*channel.NATS); ok {
		transport = presence.NewNATSTransport(n.Conn(), cfg.Presence.SubjectPrefix)
	}
	return gateway.NewPresenceHandler(connCfg, presence.NewRegistry(transport), clock)
}

// Run starts the background loops. They stop when ctx is cancelled.
func (s *Services) Run(ctx context.Context) {
	background := map[string]func(context.Context) error{
		"relay":     s.relay.Run,
		"scheduler": s.scheduler.Run,
		"gateway":   s.Gateway.Start,
	}
	if s.listener != nil {
		background["listener"] = s.listener.Start
	}

	for name, run := range background {
		go func(name string, run func(context.Context) error) {
			if err := run(ctx); err != nil {
				log.Error().Err(err).Str("component", name).Msg("background loop failed")
			}
		}(name, run)
	}
}

// Close releases connections in reverse order of creation
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	s.closers = nil
}
