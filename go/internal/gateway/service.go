// Package gateway pushes room snapshots to browsers over WebSocket.
package gateway

import (
	"context"
	"net/http"

	"github.com/ankianan/passingstone/go/internal/channel"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service owns the connection manager and its HTTP routes
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a gateway reading snapshots from ch and reporting
// expired rounds to expirer
func NewService(config Config, ch channel.Channel, clock clockwork.Clock, expirer round.Expirer) *Service {
	cm := NewConnectionManager(config.ConnectionConfig, ch, clock, expirer)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("room gateway stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
