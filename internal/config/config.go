// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/okian/gavel/internal/domain/venue"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// ShardCount is the number of per-judge single-writer queues.
	ShardCount int `koanf:"shard_count"`

	// ShardQueueSize bounds each shard queue.
	ShardQueueSize int `koanf:"shard_queue_size"`

	// RequestTimeoutMS bounds one assignment request end to end.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// IdempotencySize bounds the Idempotency-Key cache. Zero disables it.
	IdempotencySize int `koanf:"idempotency_size"`

	// CoverageThreshold is the completed-rating count under which a
	// submission earns the coverage bonus.
	CoverageThreshold int `koanf:"coverage_threshold"`

	// CoverageBonus is added to under-rated submissions.
	CoverageBonus float64 `koanf:"coverage_bonus"`

	// LocalityBonuses are the bonuses for forward distance 1, 2, 3, ...
	LocalityBonuses []float64 `koanf:"locality_bonuses"`

	// TieBreakScale bounds the random base score.
	TieBreakScale float64 `koanf:"tie_break_scale"`

	// DistanceMode is reference or changes.
	DistanceMode string `koanf:"distance_mode"`

	// RandomSeed seeds the tie-breaker. Zero seeds from the clock.
	RandomSeed int64 `koanf:"random_seed"`

	// LogTopCandidates is how many ranked candidates are logged per
	// decision at debug level. Zero disables it.
	LogTopCandidates int `koanf:"log_top_candidates"`

	// StatsIntervalMS is how often store gauges are refreshed.
	StatsIntervalMS int `koanf:"stats_interval_ms"`

	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       StoreMemory,
		SQLitePath:        "gavel.db",
		ShardCount:        runtime.NumCPU(),
		ShardQueueSize:    1024,
		RequestTimeoutMS:  2000,
		IdempotencySize:   10_000,
		CoverageThreshold: 2,
		CoverageBonus:     10,
		LocalityBonuses:   []float64{1.5, 1.4, 1.3},
		TieBreakScale:     0.001,
		DistanceMode:      venue.ModeFromReference.String(),
		RandomSeed:        0,
		LogTopCandidates:  3,
		StatsIntervalMS:   5000,
		ShutdownTimeoutMS: 10_000,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// StatsInterval returns StatsIntervalMS as a duration.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Mode returns the parsed distance mode. Call Validate first.
func (c *Config) Mode() venue.Mode {
	m, _ := venue.ParseMode(c.DistanceMode)
	return m
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.StoreDriver != StoreMemory && c.StoreDriver != StoreSQLite:
		return invalid("store_driver must be memory or sqlite, got %q", c.StoreDriver)
	case c.StoreDriver == StoreSQLite && c.SQLitePath == "":
		return invalid("sqlite_path is required for the sqlite driver")
	case c.ShardCount < 1:
		return invalid("shard_count must be positive")
	case c.ShardQueueSize < 1:
		return invalid("shard_queue_size must be positive")
	case c.RequestTimeoutMS < 1:
		return invalid("request_timeout_ms must be positive")
	case c.IdempotencySize < 0:
		return invalid("idempotency_size must not be negative")
	case c.CoverageThreshold < 1:
		return invalid("coverage_threshold must be positive")
	case c.CoverageBonus <= 0:
		return invalid("coverage_bonus must be positive")
	case c.TieBreakScale <= 0:
		return invalid("tie_break_scale must be positive")
	case c.LogTopCandidates < 0:
		return invalid("log_top_candidates must not be negative")
	case c.StatsIntervalMS < 1:
		return invalid("stats_interval_ms must be positive")
	case c.ShutdownTimeoutMS < 1:
		return invalid("shutdown_timeout_ms must be positive")
	}

	if _, err := venue.ParseMode(c.DistanceMode); err != nil {
		return invalid("distance_mode: %v", err)
	}
	if len(c.LocalityBonuses) == 0 {
		return invalid("locality_bonuses must not be empty")
	}
	for i, b := range c.LocalityBonuses {
		if b <= 0 {
			return invalid("locality_bonuses[%d] must be positive", i)
		}
	}
	if gap := smallestGap(c.LocalityBonuses); c.TieBreakScale >= gap {
		return invalid("tie_break_scale %.4g must be below the smallest bonus gap %.4g", c.TieBreakScale, gap)
	}
	if top := maxBonus(c.LocalityBonuses); c.CoverageBonus <= top+c.TieBreakScale {
		return invalid("coverage_bonus %.4g must exceed the largest locality bonus plus tie_break_scale (%.4g)",
			c.CoverageBonus, top+c.TieBreakScale)
	}
	return nil
}

// maxBonus returns the largest locality bonus.
func maxBonus(bonuses []float64) float64 {
	top := 0.0
	for _, b := range bonuses {
		top = max(top, b)
	}
	return top
}

// smallestGap returns the smallest positive difference between any two of
// the bonuses and zero.
func smallestGap(bonuses []float64) float64 {
	vals := append([]float64{0}, bonuses...)
	sort.Float64s(vals)
	gap := math.Inf(1)
	for i := 1; i < len(vals); i++ {
		if d := vals[i] - vals[i-1]; d > 0 && d < gap {
			gap = d
		}
	}
	return gap
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
