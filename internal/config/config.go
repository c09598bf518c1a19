// Package config loads the static run configuration: a YAML file for the
// sampling parameters plus environment variables (optionally from a .env
// file) for endpoints and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"
	"meta-analyzer/internal/coach"
	"meta-analyzer/internal/sampler"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLeaderboardSize = 300
	DefaultCacheTTL        = 30 * time.Minute
	DefaultLogLevel        = "info"
)

// DefaultEnvPaths is the .env search order
var DefaultEnvPaths = []string{".env", "../.env", "../../.env"}

// Config is the full static configuration
type Config struct {
	Sampling Sampling `yaml:"sampling"`
	API      API      `yaml:"api"`
	Cache    Cache    `yaml:"cache"`
	Coach    Coach    `yaml:"coach"`
	Log      Log      `yaml:"log"`

	// From the environment only
	Secrets Secrets `yaml:"-"`
}

// Sampling holds the corpus thresholds and loop limits
type Sampling struct {
	MinTotalBattles    int           `yaml:"min_total_battles"`
	MinGamesPerType    int           `yaml:"min_games_per_type"`
	RequiredArchetypes []string      `yaml:"required_archetypes"`
	InitialCohort      int           `yaml:"initial_cohort"`
	BatchSize          int           `yaml:"batch_size"`
	MatchCap           int           `yaml:"match_cap"`
	MaxRounds          int           `yaml:"max_rounds"`
	LeaderboardSize    int           `yaml:"leaderboard_size"`
	Concurrency        int           `yaml:"concurrency"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	Seed               int64         `yaml:"seed"`
	EligibleTypes      []string      `yaml:"eligible_types"`
}

// API configures the upstream client
type API struct {
	BaseURL           string `yaml:"base_url"`
	Location          string `yaml:"location"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Cache configures the Redis battlelog cache
type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

// Coach picks the models for the question answering pipeline
type Coach struct {
	ClassifierModel string `yaml:"classifier_model"`
	ExpertModel     string `yaml:"expert_model"`
}

// Log configures the process logger
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Secrets are read from the environment and never from YAML
type Secrets struct {
	APIToken          string // CR_API_TOKEN
	StoragePath       string // BLOB_STORAGE_PATH
	DatabaseURL       string // DATABASE_URL
	DatabaseAuthToken string // DATABASE_AUTH_TOKEN
	RedisURL          string // REDIS_URL
	DiscordWebhookURL string // DISCORD_WEBHOOK_URL
	DiscordBotToken   string // DISCORD_BOT_TOKEN
	DiscordChannelID  string // DISCORD_CHANNEL_ID
	GeminiAPIKey      string // GEMINI_API_KEY
}

// Default returns the stock configuration
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path (when non-empty), applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the first .env file found in paths into the process
// environment. Existing variables win. It returns the file used, if any.
func LoadDotEnv(paths ...string) (string, bool) {
	if len(paths) == 0 {
		paths = DefaultEnvPaths
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (cfg *Config) applyDefaults() {
	s := &cfg.Sampling
	if s.MinTotalBattles == 0 {
		s.MinTotalBattles = sampler.DefaultMinTotalBattles
	}
	if s.MinGamesPerType == 0 {
		s.MinGamesPerType = sampler.DefaultMinGamesPerType
	}
	if len(s.RequiredArchetypes) == 0 {
		for _, a := range archetype.Required() {
			s.RequiredArchetypes = append(s.RequiredArchetypes, a.String())
		}
	}
	if s.InitialCohort == 0 {
		s.InitialCohort = sampler.DefaultInitialCohort
	}
	if s.BatchSize == 0 {
		s.BatchSize = sampler.DefaultBatchSize
	}
	if s.MatchCap == 0 {
		s.MatchCap = battle.DefaultMatchCap
	}
	if s.MaxRounds == 0 {
		s.MaxRounds = sampler.DefaultMaxRounds
	}
	if s.LeaderboardSize == 0 {
		s.LeaderboardSize = DefaultLeaderboardSize
	}
	if s.Concurrency == 0 {
		s.Concurrency = sampler.DefaultConcurrency
	}
	if s.FetchTimeout == 0 {
		s.FetchTimeout = sampler.DefaultFetchTimeout
	}
	if len(s.EligibleTypes) == 0 {
		s.EligibleTypes = append([]string(nil), battle.DefaultEligibleTypes...)
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Coach.ClassifierModel == "" {
		cfg.Coach.ClassifierModel = coach.DefaultClassifierModel
	}
	if cfg.Coach.ExpertModel == "" {
		cfg.Coach.ExpertModel = coach.DefaultExpertModel
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// ApplyEnv reads secrets and the few overridable knobs from getenv
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	get := func(key string) string {
		// .env values sometimes keep their quotes
		return strings.Trim(strings.TrimSpace(getenv(key)), "\"")
	}

	cfg.Secrets = Secrets{
		APIToken:          get("CR_API_TOKEN"),
		StoragePath:       get("BLOB_STORAGE_PATH"),
		DatabaseURL:       get("DATABASE_URL"),
		DatabaseAuthToken: get("DATABASE_AUTH_TOKEN"),
		RedisURL:          get("REDIS_URL"),
		DiscordWebhookURL: get("DISCORD_WEBHOOK_URL"),
		DiscordBotToken:   get("DISCORD_BOT_TOKEN"),
		DiscordChannelID:  get("DISCORD_CHANNEL_ID"),
		GeminiAPIKey:      get("GEMINI_API_KEY"),
	}

	if v := get("CR_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := get("SAMPLER_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SAMPLER_SEED must be an integer: %w", err)
		}
		cfg.Sampling.Seed = seed
	}
	return nil
}

func (cfg *Config) validate() error {
	s := cfg.Sampling
	if s.MinTotalBattles < 0 {
		return fmt.Errorf("min_total_battles must be >= 0")
	}
	if s.MinGamesPerType < 0 {
		return fmt.Errorf("min_games_per_type must be >= 0")
	}
	if s.InitialCohort < 1 {
		return fmt.Errorf("initial_cohort must be >= 1")
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if s.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be >= 1")
	}
	if s.LeaderboardSize < 1 {
		return fmt.Errorf("leaderboard_size must be >= 1")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	if s.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}

	seen := make(map[archetype.Archetype]bool, len(s.RequiredArchetypes))
	for _, name := range s.RequiredArchetypes {
		a, err := archetype.Parse(name)
		if err != nil {
			return fmt.Errorf("required_archetypes: %w", err)
		}
		if a == archetype.Hybrid {
			return fmt.Errorf("required_archetypes: %s has no floor", a)
		}
		if seen[a] {
			return fmt.Errorf("required_archetypes: duplicate %s", a)
		}
		seen[a] = true
	}
	return nil
}

// Required returns the parsed required archetypes
func (cfg *Config) Required() []archetype.Archetype {
	out := make([]archetype.Archetype, 0, len(cfg.Sampling.RequiredArchetypes))
	for _, name := range cfg.Sampling.RequiredArchetypes {
		if a, err := archetype.Parse(name); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// SamplerConfig maps the sampling section onto the controller's config
func (cfg *Config) SamplerConfig() sampler.Config {
	s := cfg.Sampling
	return sampler.Config{
		MinTotalBattles: s.MinTotalBattles,
		MinGamesPerType: s.MinGamesPerType,
		Required:        cfg.Required(),
		InitialCohort:   s.InitialCohort,
		BatchSize:       s.BatchSize,
		MaxRounds:       s.MaxRounds,
		Concurrency:     s.Concurrency,
		FetchTimeout:    s.FetchTimeout,
		Seed:            s.Seed,
	}
}

// MetaNormalizer returns the capped normalizer used for the ladder corpus
func (cfg *Config) MetaNormalizer() *battle.Normalizer {
	return battle.NewNormalizer(cfg.Sampling.EligibleTypes, cfg.Sampling.MatchCap)
}

// PlayerNormalizer returns the uncapped normalizer used for one player
func (cfg *Config) PlayerNormalizer() *battle.Normalizer {
	return battle.NewNormalizer(cfg.Sampling.EligibleTypes, 0)
}
