package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/config"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "NATS_URL", "STORE_DRIVER", "GUESS_POLICY", "ROUND_DURATION", "PRESENCE_ENABLED"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
	assert.Equal(t, config.ChannelMemory, cfg.ChannelDriver())
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
game:
  round_duration: 45s
  guess_policy: strict
server:
  port: "9000"
  log_level: debug
nats:
  url: nats://nats:4222
store:
  driver: postgres
presence:
  enabled: true
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Game.RoundDuration)
	assert.Equal(t, models.GuessPolicyStrict, cfg.Game.GuessPolicy)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, config.ChannelNATS, cfg.ChannelDriver())
	assert.Equal(t, config.StorePostgres, cfg.Store.Driver)
	assert.True(t, cfg.Presence.Enabled)
	// Untouched keys keep their defaults
	assert.Equal(t, 6, cfg.Game.JoinCodeLength)
	assert.Equal(t, "rooms.presence", cfg.Presence.SubjectPrefix)

	t.Setenv("PORT", "7000")
	t.Setenv("ROUND_DURATION", "30")
	t.Setenv("GUESS_POLICY", "overwrite")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PRESENCE_ENABLED", "false")
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Game.RoundDuration)
	assert.Equal(t, models.GuessPolicyOverwrite, cfg.Game.GuessPolicy)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)
	assert.False(t, cfg.Presence.Enabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "policy", yaml: "game:\n  guess_policy: maybe\n"},
		{name: "driver", yaml: "store:\n  driver: sqlite\n"},
		{name: "duration", yaml: "game:\n  round_duration: 0s\n"},
		{name: "skew", yaml: "game:\n  round_duration: 1s\n  skew_tolerance: 2s\n"},
		{name: "level", yaml: "server:\n  log_level: loud\n"},
		{name: "env duration", env: map[string]string{"ROUND_DURATION": "soon"}},
		{name: "env presence", env: map[string]string{"PRESENCE_ENABLED": "sometimes"}},
		{name: "syntax", yaml: "game: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
