package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/lorekeeper/chronicle/internal/config"
	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/character"
)

const testOwner = "user-123"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

func newTestEnv(t *testing.T) (*CharacterHandler, *storage.MockStore, *config.Config) {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	store := storage.NewMockStore(storage.Options{
		EmbeddedReadFallback: cfg.POIEmbeddedReadFallback,
		MigrationEnabled:     cfg.POIMigrationEnabled,
	})
	return NewCharacterHandler(cfg, store, testLogger()), store, cfg
}

// seedCharacter creates a character directly in the store and returns it.
func seedCharacter(t *testing.T, store *storage.MockStore, owner string, identity character.Identity) *character.Character {
	t.Helper()
	c := character.New(owner, identity)
	if err := store.CreateCharacter(context.Background(), c); err != nil {
		t.Fatalf("Failed to seed character: %v", err)
	}
	return c
}

// doRequest runs one request through the handler. A non-empty caller sets
// the X-User-Id header; the sentinel " " sends a whitespace-only header.
func doRequest(handler http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if caller != "" {
		req.Header.Set("X-User-Id", caller)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
