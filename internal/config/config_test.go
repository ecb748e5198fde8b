package config

import (
	"log/slog"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development, got %q", cfg.Environment)
	}
	if cfg.KeyPrefix != "chronicle" {
		t.Errorf("expected prefix chronicle, got %q", cfg.KeyPrefix)
	}
	if cfg.NarrativeQueryDefault != 10 || cfg.NarrativeQueryMax != 100 {
		t.Errorf("unexpected narrative bounds: %d/%d", cfg.NarrativeQueryDefault, cfg.NarrativeQueryMax)
	}
	if cfg.POICapacity != 200 {
		t.Errorf("expected poi capacity 200, got %d", cfg.POICapacity)
	}
	if !cfg.POIEmbeddedReadFallback || !cfg.POIMigrationEnabled {
		t.Error("expected legacy poi fallback and migration enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("NARRATIVE_QUERY_MAX", "50")
	t.Setenv("POI_MIGRATION_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction true")
	}
	if cfg.NarrativeQueryMax != 50 {
		t.Errorf("expected narrative max 50, got %d", cfg.NarrativeQueryMax)
	}
	if cfg.POIMigrationEnabled {
		t.Error("expected migration disabled")
	}
}

func TestLoad_RejectsBadBounds(t *testing.T) {
	t.Setenv("NARRATIVE_QUERY_DEFAULT", "200")
	t.Setenv("NARRATIVE_QUERY_MAX", "100")

	if _, err := Load(); err == nil {
		t.Error("expected error when default exceeds max")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.expected {
			t.Errorf("SlogLevel(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}
