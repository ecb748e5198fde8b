// Package config loads service configuration from the environment. A Config
// is built once in main and passed down; nothing else reads env vars.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL  string `env:"REDIS_URL" envDefault:"localhost:6379"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"chronicle"`

	// Narrative history query bounds. Requests outside [1, NarrativeQueryMax]
	// are rejected, never clamped.
	NarrativeQueryDefault int `env:"NARRATIVE_QUERY_DEFAULT" envDefault:"10"`
	NarrativeQueryMax     int `env:"NARRATIVE_QUERY_MAX" envDefault:"100"`

	POICapacity       int `env:"POI_CAPACITY" envDefault:"200"`
	POIListDefault    int `env:"POI_LIST_DEFAULT" envDefault:"10"`
	POIListMax        int `env:"POI_LIST_MAX" envDefault:"200"`
	POISampleDefault  int `env:"POI_SAMPLE_DEFAULT" envDefault:"3"`
	POISampleMax      int `env:"POI_SAMPLE_MAX" envDefault:"20"`
	POIPreviewDefault int `env:"POI_PREVIEW_DEFAULT" envDefault:"5"`
	POIPreviewMax     int `env:"POI_PREVIEW_MAX" envDefault:"20"`

	ContextRecentDefault int `env:"CONTEXT_RECENT_DEFAULT" envDefault:"20"`
	ContextRecentMax     int `env:"CONTEXT_RECENT_MAX" envDefault:"100"`
	ContextPOISampleMax  int `env:"CONTEXT_POI_SAMPLE_MAX" envDefault:"5"`

	// Legacy embedded world_pois handling: read fallback when the pois
	// subcollection is empty, and copy-on-write migration on first POI write.
	POIEmbeddedReadFallback bool `env:"POI_EMBEDDED_READ_FALLBACK" envDefault:"true"`
	POIMigrationEnabled     bool `env:"POI_MIGRATION_ENABLED" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, b := range []struct {
		name     string
		def, max int
	}{
		{"narrative query", c.NarrativeQueryDefault, c.NarrativeQueryMax},
		{"poi list", c.POIListDefault, c.POIListMax},
		{"poi sample", c.POISampleDefault, c.POISampleMax},
		{"poi preview", c.POIPreviewDefault, c.POIPreviewMax},
		{"context recent", c.ContextRecentDefault, c.ContextRecentMax},
	} {
		if b.max < 1 || b.def < 1 || b.def > b.max {
			return fmt.Errorf("invalid %s bounds: default %d, max %d", b.name, b.def, b.max)
		}
	}
	if c.POICapacity < 1 {
		return fmt.Errorf("invalid poi capacity: %d", c.POICapacity)
	}
	if c.ContextPOISampleMax < 1 {
		return fmt.Errorf("invalid context poi sample cap: %d", c.ContextPOISampleMax)
	}
	return nil
}

// IsProduction selects JSON log output in logger.Setup.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SlogLevel maps the configured level string to a slog.Level, defaulting to
// info for unrecognized values.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
