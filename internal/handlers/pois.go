package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/internal/config"
	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// POIHandler manages the points-of-interest subcollection.
type POIHandler struct {
	cfg     *config.Config
	storage storage.Store
	logger  *slog.Logger
}

func NewPOIHandler(cfg *config.Config, store storage.Store, logger *slog.Logger) *POIHandler {
	return &POIHandler{cfg: cfg, storage: store, logger: logger}
}

func (h *POIHandler) handle(w http.ResponseWriter, r *http.Request, characterID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r, characterID)
		case http.MethodGet:
			h.handleList(w, r, characterID)
		default:
			methodNotAllowed(w, h.logger, "POST, GET")
		}
		return
	}

	switch rest[0] {
	case "random":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, h.logger, "GET")
			return
		}
		h.handleSample(w, r, characterID)
	case "summary":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, h.logger, "GET")
			return
		}
		h.handleSummary(w, r, characterID)
	default:
		poiID := rest[0]
		switch r.Method {
		case http.MethodPut:
			h.handleUpdate(w, r, characterID, poiID)
		case http.MethodDelete:
			h.handleDelete(w, r, characterID, poiID)
		default:
			methodNotAllowed(w, h.logger, "PUT, DELETE")
		}
	}
}

// CreatePOIRequest is the POI draft. created_at may be supplied by the
// client and defaults server-side.
type CreatePOIRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	Visited     bool      `json:"visited"`
	Tags        []string  `json:"tags,omitempty"`
}

func (h *POIHandler) handleCreate(w http.ResponseWriter, r *http.Request, characterID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req CreatePOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}

	poi := character.PointOfInterest{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   req.CreatedAt,
		Visited:     req.Visited,
		Tags:        req.Tags,
	}
	if err := poi.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.storage.CreatePOI(r.Context(), characterID, owner, &poi, h.cfg.POICapacity); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("poi created", "character_id", characterID, "poi_id", poi.ID)
	writeJSON(w, h.logger, http.StatusCreated, poi)
}

// ListPOIsResponse is one page of POIs, newest first. The cursor is opaque
// and empty on the final page.
type ListPOIsResponse struct {
	POIs       []character.PointOfInterest `json:"pois"`
	NextCursor string                      `json:"next_cursor,omitempty"`
	Total      int                         `json:"total"`
	Limit      int                         `json:"limit"`
}

func (h *POIHandler) handleList(w http.ResponseWriter, r *http.Request, characterID string) {
	if !h.authorizeCharacterRead(w, r, characterID) {
		return
	}

	limit, err := queryInt(r, "limit", h.cfg.POIListDefault, 1, h.cfg.POIListMax)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pois, next, total, err := h.storage.ListPOIs(r.Context(), characterID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ListPOIsResponse{
		POIs:       pois,
		NextCursor: next,
		Total:      total,
		Limit:      limit,
	})
}

// SamplePOIsResponse carries a uniform sample without replacement. Repeat
// calls with the same arguments return different orders and subsets.
type SamplePOIsResponse struct {
	POIs       []character.PointOfInterest `json:"pois"`
	RequestedN int                         `json:"requested_n"`
	ReturnedN  int                         `json:"returned_n"`
	Total      int                         `json:"total"`
}

func (h *POIHandler) handleSample(w http.ResponseWriter, r *http.Request, characterID string) {
	if !h.authorizeCharacterRead(w, r, characterID) {
		return
	}

	n, err := queryInt(r, "n", h.cfg.POISampleDefault, 1, h.cfg.POISampleMax)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	all, err := h.storage.AllPOIs(r.Context(), characterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sampled := samplePOIs(all, n)
	writeJSON(w, h.logger, http.StatusOK, SamplePOIsResponse{
		POIs:       sampled,
		RequestedN: n,
		ReturnedN:  len(sampled),
		Total:      len(all),
	})
}

// samplePOIs draws up to n entries uniformly without replacement. A
// population smaller than n is returned whole.
func samplePOIs(pois []character.PointOfInterest, n int) []character.PointOfInterest {
	out := make([]character.PointOfInterest, len(pois))
	copy(out, pois)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// POISummaryResponse is the total count plus a newest-first preview.
type POISummaryResponse struct {
	Total   int                         `json:"total"`
	Preview []character.PointOfInterest `json:"preview"`
}

func (h *POIHandler) handleSummary(w http.ResponseWriter, r *http.Request, characterID string) {
	if !h.authorizeCharacterRead(w, r, characterID) {
		return
	}

	limit, err := queryInt(r, "preview_limit", h.cfg.POIPreviewDefault, 1, h.cfg.POIPreviewMax)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	preview, _, total, err := h.storage.ListPOIs(r.Context(), characterID, limit, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, POISummaryResponse{Total: total, Preview: preview})
}

// UpdatePOIRequest is a partial update; at least one field must be present.
type UpdatePOIRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Visited     *bool     `json:"visited,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

func (h *POIHandler) handleUpdate(w http.ResponseWriter, r *http.Request, characterID, poiID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req UpdatePOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}
	if req.Name == nil && req.Description == nil && req.Visited == nil && req.Tags == nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest,
			"at least one of name, description, visited, tags is required"))
		return
	}

	updated, err := h.storage.UpdatePOI(r.Context(), characterID, owner, poiID, func(p *character.PointOfInterest) error {
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.Visited != nil {
			p.Visited = *req.Visited
		}
		if req.Tags != nil {
			p.Tags = *req.Tags
		}
		return p.Validate()
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, updated)
}

func (h *POIHandler) handleDelete(w http.ResponseWriter, r *http.Request, characterID, poiID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err = h.storage.DeletePOI(r.Context(), characterID, owner, poiID)
	if err != nil && !errors.Is(err, storage.ErrPOINotFound) {
		writeError(w, r, h.logger, err)
		return
	}
	// Deleting an already-missing POI is a no-op, not an error.
	w.WriteHeader(http.StatusNoContent)
}

// authorizeCharacterRead resolves the optional caller header and checks
// visibility against the character's owner. Writes the error response
// itself; returns false when the request is already answered.
func (h *POIHandler) authorizeCharacterRead(w http.ResponseWriter, r *http.Request, characterID string) bool {
	caller, err := callerID(r, false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	c, err := h.storage.GetCharacter(r.Context(), characterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	if err := authorizeRead(c, caller); err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	return true
}
