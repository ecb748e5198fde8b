package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogger_AssignsRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	h := Logger(discardLogger(), inner)
	req := httptest.NewRequest(http.MethodGet, "/v1/characters", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen == "" {
		t.Error("expected a request id in the handler context")
	}
	if got := w.Header().Get("X-Request-Id"); got != seen {
		t.Errorf("expected header %q to match context id %q", got, seen)
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status passthrough, got %d", w.Code)
	}
}

func TestLogger_PropagatesClientRequestID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Logger(discardLogger(), inner)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "client-id-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "client-id-123" {
		t.Errorf("expected client-supplied id echoed, got %q", got)
	}
}

func TestRecover_PanicBecomes500(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Logger(discardLogger(), Recover(discardLogger(), inner))

	req := httptest.NewRequest(http.MethodGet, "/v1/characters", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := w.Body.String()
	if body == "" {
		t.Fatal("expected a body")
	}
	// The panic payload must not leak to the client.
	if strings.Contains(body, "boom") {
		t.Error("panic value leaked into response body")
	}
}
