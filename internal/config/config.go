// Package config defines process configuration and its loading order:
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"time"

	"github.com/punchcam/backend/internal/engine"
)

// Config contains process configuration. Durations are plain integers with
// the unit in the key so they stay flat for env and YAML overrides.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects "console" or "json" output.
	LogFormat string `koanf:"log_format"`

	// MaxRounds and RoundTimeSec shape the match.
	MaxRounds    int `koanf:"max_rounds"`
	RoundTimeSec int `koanf:"round_time_sec"`

	// MoveCooldownMS is the per-player gap the arbiter enforces between
	// accepted moves.
	MoveCooldownMS int `koanf:"move_cooldown_ms"`

	// FlagDecayMS is how long a block or dodge stays effective.
	FlagDecayMS int `koanf:"flag_decay_ms"`

	// MaxPlayers caps the roster.
	MaxPlayers int `koanf:"max_players"`

	// TickIntervalMS is the game clock cadence.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// HistorySize is the per-connection frame window the motion rules see.
	HistorySize int `koanf:"history_size"`

	// MinVisibility is the confidence floor below which a landmark is
	// treated as missing.
	MinVisibility float64 `koanf:"min_visibility"`

	// OutboxSize bounds each connection's send queue.
	OutboxSize int `koanf:"outbox_size"`

	// LivenessTimeoutSec evicts connections idle for longer.
	LivenessTimeoutSec int `koanf:"liveness_timeout_sec"`

	// SweepIntervalSec is how often idle connections are checked.
	SweepIntervalSec int `koanf:"sweep_interval_sec"`

	// WriteTimeoutSec bounds a single websocket write.
	WriteTimeoutSec int `koanf:"write_timeout_sec"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Addr:               ":8000",
		LogLevel:           "info",
		LogFormat:          "console",
		MaxRounds:          3,
		RoundTimeSec:       180,
		MoveCooldownMS:     300,
		FlagDecayMS:        1500,
		MaxPlayers:         2,
		TickIntervalMS:     1000,
		HistorySize:        10,
		MinVisibility:      0.5,
		OutboxSize:         32,
		LivenessTimeoutSec: 30,
		SweepIntervalSec:   10,
		WriteTimeoutSec:    3,
	}
}

func (c *Config) MoveCooldown() time.Duration {
	return time.Duration(c.MoveCooldownMS) * time.Millisecond
}

func (c *Config) FlagDecay() time.Duration {
	return time.Duration(c.FlagDecayMS) * time.Millisecond
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func (c *Config) LivenessTimeout() time.Duration {
	return time.Duration(c.LivenessTimeoutSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

// Rules maps the match-shaped fields onto the engine's rule set.
func (c *Config) Rules() engine.Rules {
	return engine.Rules{
		MaxRounds:    c.MaxRounds,
		RoundTimeSec: c.RoundTimeSec,
		MoveCooldown: c.MoveCooldown(),
		FlagDecay:    c.FlagDecay(),
		RosterSize:   c.MaxPlayers,
	}
}
