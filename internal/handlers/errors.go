package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lorekeeper/chronicle/internal/middleware"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps application error kinds to HTTP status codes.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the JSON error envelope. Internal failures are
// logged in full and surfaced opaquely with the request correlation id.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{
		Error: err.Error(),
		Field: apperr.FieldOf(err),
	}
	if status == http.StatusInternalServerError {
		logger.Error("internal error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestID(r.Context()))
		resp = ErrorResponse{
			Error:     "internal server error",
			RequestID: middleware.RequestID(r.Context()),
		}
	} else if status == http.StatusServiceUnavailable {
		logger.Error("storage unavailable", "error", err, "path", r.URL.Path)
		resp.Error = "storage unavailable"
	}

	writeJSON(w, logger, status, resp)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, logger *slog.Logger, allowed string) {
	writeJSON(w, logger, http.StatusMethodNotAllowed, ErrorResponse{
		Error: "Method not allowed. Supported methods: " + allowed,
	})
}

// callerID extracts the X-User-Id header. An absent header is anonymous and
// allowed on reads; a present-but-blank header is always a client error;
// required marks operations that cannot be anonymous.
func callerID(r *http.Request, required bool) (string, error) {
	values, present := r.Header["X-User-Id"]
	if !present || len(values) == 0 {
		if required {
			return "", apperr.New(apperr.BadRequest, "X-User-Id header is required")
		}
		return "", nil
	}
	id := strings.TrimSpace(values[0])
	if id == "" {
		return "", apperr.New(apperr.BadRequest, "X-User-Id header must not be empty")
	}
	return id, nil
}

// authorizeRead enforces visibility on reads: anonymous is allowed, but a
// supplied caller id must match the owner.
func authorizeRead(c *character.Character, caller string) error {
	if caller != "" && caller != c.OwnerID {
		return apperr.New(apperr.Forbidden, "caller does not own this character")
	}
	return nil
}
