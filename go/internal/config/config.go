// Package config loads server settings from a YAML file and lets the
// environment override the values most often changed per deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ChannelMemory = "memory"
	ChannelNATS   = "nats"
)

type Config struct {
	Game     GameConfig     `yaml:"game"`
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	Store    StoreConfig    `yaml:"store"`
	Presence PresenceConfig `yaml:"presence"`
}

type GameConfig struct {
	RoundDuration  time.Duration      `yaml:"round_duration"`
	SkewTolerance  time.Duration      `yaml:"skew_tolerance"`
	GuessPolicy    models.GuessPolicy `yaml:"guess_policy"`
	JoinCodeLength int                `yaml:"join_code_length"`
	InboxSize      int                `yaml:"inbox_size"`
	ExpiryWorkers  int                `yaml:"expiry_workers"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	LogLevel     string   `yaml:"log_level"`
	RatePerSec   float64  `yaml:"rate_per_second"`
	RateBurst    int      `yaml:"rate_burst"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type NATSConfig struct {
	// URL empty means snapshots stay in process
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// PresenceConfig enables the ephemeral variant next to the persisted game.
// Presence rides on NATS core subjects when NATS is configured and stays in
// process otherwise.
type PresenceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Game: GameConfig{
			RoundDuration:  60 * time.Second,
			SkewTolerance:  2 * time.Second,
			GuessPolicy:    models.GuessPolicyOverwrite,
			JoinCodeLength: 6,
			InboxSize:      64,
			ExpiryWorkers:  4,
		},
		Server: ServerConfig{
			Port:         "8080",
			LogLevel:     "info",
			RatePerSec:   10,
			RateBurst:    20,
			AllowOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			Stream:        "ROOM_EVENTS",
			SubjectPrefix: "rooms.events",
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Presence: PresenceConfig{
			SubjectPrefix: "rooms.presence",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("GUESS_POLICY"); v != "" {
		c.Game.GuessPolicy = models.GuessPolicy(v)
	}
	if v := os.Getenv("PRESENCE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PRESENCE_ENABLED: %w", err)
		}
		c.Presence.Enabled = enabled
	}
	if v := os.Getenv("ROUND_DURATION"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("ROUND_DURATION: %w", err)
		}
		c.Game.RoundDuration = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90")
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) Validate() error {
	if c.Game.RoundDuration <= 0 {
		return fmt.Errorf("round duration must be positive, got %s", c.Game.RoundDuration)
	}
	if c.Game.SkewTolerance < 0 || c.Game.SkewTolerance >= c.Game.RoundDuration {
		return fmt.Errorf("skew tolerance %s must be within the round duration", c.Game.SkewTolerance)
	}
	switch c.Game.GuessPolicy {
	case models.GuessPolicyOverwrite, models.GuessPolicyStrict:
	default:
		return fmt.Errorf("unknown guess policy %q", c.Game.GuessPolicy)
	}
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// ChannelDriver reports which group channel the config selects
func (c *Config) ChannelDriver() string {
	if c.NATS.URL != "" {
		return ChannelNATS
	}
	return ChannelMemory
}

// Level returns the parsed log level
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
