// Package config defines service configuration structures and loading hooks.
package config

import "runtime"

// Config contains process configuration. Policy knobs (fuzzy threshold,
// partial credit, decay half-life) are configuration rather than
// constants; the defaults here are starting points, not mandates.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Dimension sets the embedding vector dimension.
	Dimension int `koanf:"dimension"`

	// ModelVersion is the embedding model version the process starts at.
	ModelVersion int `koanf:"model_version"`

	// IndexCells and IndexProbes shape the inverted-file index.
	IndexCells  int `koanf:"index_cells"`
	IndexProbes int `koanf:"index_probes"`

	// CandidateK bounds the nearest-neighbor prefilter; signal
	// extraction never runs on more than this many opportunities.
	CandidateK int `koanf:"candidate_k"`

	// DefaultLimit and MaxLimit bound the result count per request.
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`

	// MinScore drops results scoring below the threshold.
	MinScore float64 `koanf:"min_score"`

	// SignalWeights blends the extractors; missing names weigh 0.
	SignalWeights map[string]float64 `koanf:"signal_weights"`

	// PartialCredit is the overlap credit for ancestor-category matches.
	PartialCredit float64 `koanf:"partial_credit"`

	// FuzzyMaxDistance and OverlapThreshold tune KB fuzzy matching.
	FuzzyMaxDistance int     `koanf:"fuzzy_max_distance"`
	OverlapThreshold float64 `koanf:"overlap_threshold"`

	// KeepUnresolved returns unmatched tokens for manual curation.
	KeepUnresolved bool `koanf:"keep_unresolved"`

	// HalfLifeHours sets behavioral recency decay.
	HalfLifeHours int `koanf:"half_life_hours"`

	// HistoryWindow bounds how many recent interactions are scored.
	HistoryWindow int `koanf:"history_window"`

	// DiversityCap limits same-category results in the top-N; 0 disables.
	DiversityCap int `koanf:"diversity_cap"`

	// CacheTTLSeconds is the secondary TTL safety net on the result
	// cache; version comparison remains the primary invalidation.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// CacheSize bounds the result cache entry count.
	CacheSize int `koanf:"cache_size"`

	// ReembedQueueSize bounds the re-embed job queue.
	ReembedQueueSize int `koanf:"reembed_queue_size"`

	// WorkerCount sets the number of re-embed workers.
	WorkerCount int `koanf:"worker_count"`

	// IndexRetry* bound orchestrator retries against an unavailable index.
	IndexRetryAttempts  int `koanf:"index_retry_attempts"`
	IndexRetryBackoffMS int `koanf:"index_retry_backoff_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		Addr:         ":9090",
		Dimension:    256,
		ModelVersion: 1,
		IndexCells:   32,
		IndexProbes:  8,
		CandidateK:   200,
		DefaultLimit: 10,
		MaxLimit:     100,
		MinScore:     0,
		SignalWeights: map[string]float64{
			"semantic":      0.4,
			"skill_overlap": 0.4,
			"behavioral":    0.2,
		},
		PartialCredit:       0.5,
		FuzzyMaxDistance:    2,
		OverlapThreshold:    0.6,
		KeepUnresolved:      true,
		HalfLifeHours:       14 * 24,
		HistoryWindow:       50,
		DiversityCap:        0,
		CacheTTLSeconds:     60,
		CacheSize:           10_000,
		ReembedQueueSize:    10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		IndexRetryAttempts:  3,
		IndexRetryBackoffMS: 50,
	}
}
