package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PUNCHCAM_CONFIG is set
//  3. env (prefix PUNCHCAM_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PUNCHCAM_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PUNCHCAM_ADDR, PUNCHCAM_MAX_ROUNDS, ...
	// Map env keys like PUNCHCAM_MAX_ROUNDS -> max_rounds (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PUNCHCAM_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "punchcam_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxRounds < 1:
		return fmt.Errorf("%w: max_rounds must be at least 1", ErrInvalidConfig)
	case c.RoundTimeSec < 1:
		return fmt.Errorf("%w: round_time_sec must be at least 1", ErrInvalidConfig)
	case c.MaxPlayers < 1:
		return fmt.Errorf("%w: max_players must be at least 1", ErrInvalidConfig)
	case c.TickIntervalMS < 1:
		return fmt.Errorf("%w: tick_interval_ms must be at least 1", ErrInvalidConfig)
	case c.MinVisibility < 0 || c.MinVisibility > 1:
		return fmt.Errorf("%w: min_visibility must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}
