// Package config loads the engine configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Tier selects the embedding strategy.
type Tier string

const (
	TierHybrid Tier = "hybrid"
	TierFast   Tier = "fast"
	TierSmart  Tier = "smart"
	TierDeep   Tier = "deep"
)

// Config holds the configuration for the memory engine. Environment
// variables are parsed from the CORTEX_ prefix, e.g. CORTEX_TIER,
// CORTEX_PROVIDER, CORTEX_SQLITE_PATH.
type Config struct {
	// Embedding strategy
	Tier             string `envconfig:"TIER" default:"hybrid"`
	Provider         string `envconfig:"PROVIDER" default:"synthetic"`
	ProviderEndpoint string `envconfig:"PROVIDER_ENDPOINT" default:""`
	EmbedModel       string `envconfig:"EMBED_MODEL" default:""`
	EmbedMode        string `envconfig:"EMBED_MODE" default:"simple"`
	EmbedTimeoutSec  int    `envconfig:"EMBED_TIMEOUT_SECONDS" default:"30"`

	// Persistence
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/cortex.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Query defaults
	MinScore          float64 `envconfig:"MIN_SCORE" default:"0.3"`
	WaypointThreshold float64 `envconfig:"WAYPOINT_THRESHOLD" default:"0.75"`

	// Reinforcement
	SalienceReinforceDelta float64 `envconfig:"SALIENCE_REINFORCE_DELTA" default:"0.1"`
	WaypointReinforceDelta float64 `envconfig:"WAYPOINT_REINFORCE_DELTA" default:"0.05"`

	// Decay worker
	DecayIntervalMinutes int     `envconfig:"DECAY_INTERVAL_MINUTES" default:"120"`
	DecayShards          int     `envconfig:"DECAY_SHARDS" default:"4"`
	WaypointPruneWeight  float64 `envconfig:"WAYPOINT_PRUNE_WEIGHT" default:"0.05"`
	WaypointPruneDays    int     `envconfig:"WAYPOINT_PRUNE_DAYS" default:"7"`

	// Classifier
	SectorPatternsFile string `envconfig:"SECTOR_PATTERNS_FILE" default:""`

	// HTTP surface
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Health checks
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

var validTiers = map[string]bool{"hybrid": true, "fast": true, "smart": true, "deep": true}

var validProviders = map[string]bool{
	"openai": true, "gemini": true, "aws": true,
	"ollama": true, "local": true, "synthetic": true,
}

// ResolveDefaults validates enum keys and derives dependent settings.
func (c *Config) ResolveDefaults() error {
	if !validTiers[c.Tier] {
		return fmt.Errorf("unsupported CORTEX_TIER: %s", c.Tier)
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("unsupported CORTEX_PROVIDER: %s", c.Provider)
	}
	switch c.EmbedMode {
	case "simple", "advanced":
	default:
		return fmt.Errorf("unsupported CORTEX_EMBED_MODE: %s", c.EmbedMode)
	}
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("CORTEX_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported CORTEX_DB_DRIVER: %s", c.DBDriver)
	}
	if c.Provider == "ollama" && c.ProviderEndpoint == "" {
		c.ProviderEndpoint = "http://localhost:11434"
	}
	if c.DecayIntervalMinutes <= 0 {
		c.DecayIntervalMinutes = 120
	}
	if c.DecayShards <= 0 {
		c.DecayShards = 4
	}
	if c.EmbedTimeoutSec <= 0 {
		c.EmbedTimeoutSec = 30
	}
	return nil
}

// New creates a Config by parsing CORTEX_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("CORTEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a config suitable for in-process tests: synthetic
// embeddings, sqlite in a temp path filled in by the caller.
func NewForTesting() *Config {
	cfg := &Config{
		Tier:                      "fast",
		Provider:                  "synthetic",
		EmbedMode:                 "simple",
		EmbedTimeoutSec:           5,
		DBDriver:                  "sqlite",
		SQLitePath:                "",
		MinScore:                  0.3,
		WaypointThreshold:         0.75,
		SalienceReinforceDelta:    0.1,
		WaypointReinforceDelta:    0.05,
		DecayIntervalMinutes:      120,
		DecayShards:               2,
		WaypointPruneWeight:       0.05,
		WaypointPruneDays:         7,
		HTTPPort:                  8080,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
	return cfg
}
