package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

// queryInt parses an integer query parameter against an inclusive range.
// Out-of-range values are rejected, never clamped.
func queryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.BadRequest, "%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, apperr.Newf(apperr.BadRequest, "%s must be between %d and %d (got %d)", name, min, max, v)
	}
	return v, nil
}

// queryBool parses a boolean query parameter.
func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Newf(apperr.BadRequest, "%s must be a boolean", name)
	}
	return v, nil
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperr.Newf(apperr.BadRequest, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}
