package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if MATCHD_CONFIG is set
//  3. env (prefix MATCHD_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MATCHD_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MATCHD_ADDR, MATCHD_CANDIDATE_K, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("MATCHD_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "matchd_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

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
	case c.Dimension <= 0:
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	case c.IndexCells <= 0 || c.IndexProbes <= 0:
		return fmt.Errorf("%w: index cells and probes must be positive", ErrInvalidConfig)
	case c.IndexProbes > c.IndexCells:
		return fmt.Errorf("%w: index probes must not exceed cells", ErrInvalidConfig)
	case c.CandidateK <= 0:
		return fmt.Errorf("%w: candidate_k must be positive", ErrInvalidConfig)
	case c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit:
		return fmt.Errorf("%w: result limits are inconsistent", ErrInvalidConfig)
	case c.PartialCredit < 0 || c.PartialCredit > 1:
		return fmt.Errorf("%w: partial_credit must be in [0,1]", ErrInvalidConfig)
	case c.HalfLifeHours <= 0:
		return fmt.Errorf("%w: half_life_hours must be positive", ErrInvalidConfig)
	}
	for name, w := range c.SignalWeights {
		if w < 0 {
			return fmt.Errorf("%w: signal weight %q is negative", ErrInvalidConfig, name)
		}
	}
	return nil
}
