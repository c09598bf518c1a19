package sampler

import (
	"time"

	"meta-analyzer/internal/archetype"
)

const (
	DefaultMinTotalBattles = 2000
	DefaultMinGamesPerType = 400
	DefaultInitialCohort   = 250
	DefaultBatchSize       = 5
	DefaultMaxRounds       = 40
	DefaultConcurrency     = 8
	DefaultFetchTimeout    = 15 * time.Second
)

// Config holds the static parameters of one sampling run
type Config struct {
	MinTotalBattles int
	MinGamesPerType int
	Required        []archetype.Archetype
	InitialCohort   int
	BatchSize       int
	MaxRounds       int
	Concurrency     int
	FetchTimeout    time.Duration
	Seed            int64 // 0 = seeded from the clock
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		MinTotalBattles: DefaultMinTotalBattles,
		MinGamesPerType: DefaultMinGamesPerType,
		Required:        archetype.Required(),
		InitialCohort:   DefaultInitialCohort,
		BatchSize:       DefaultBatchSize,
		MaxRounds:       DefaultMaxRounds,
		Concurrency:     DefaultConcurrency,
		FetchTimeout:    DefaultFetchTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Required == nil {
		c.Required = archetype.Required()
	}
	if c.InitialCohort <= 0 {
		c.InitialCohort = DefaultInitialCohort
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

func (c Config) thresholds() Thresholds {
	return Thresholds{
		MinTotal:   c.MinTotalBattles,
		MinPerType: c.MinGamesPerType,
		Required:   c.Required,
		BatchSize:  c.BatchSize,
		MaxRounds:  c.MaxRounds,
	}
}
