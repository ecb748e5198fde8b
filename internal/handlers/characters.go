package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/internal/config"
	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// CharacterHandler owns the /v1/characters tree and dispatches sub-resource
// paths to the quest, combat, POI, narrative and context handlers.
type CharacterHandler struct {
	cfg     *config.Config
	storage storage.Store
	logger  *slog.Logger

	quest     *QuestHandler
	combat    *CombatHandler
	pois      *POIHandler
	narrative *NarrativeHandler
	context   *ContextHandler
}

func NewCharacterHandler(cfg *config.Config, store storage.Store, logger *slog.Logger) *CharacterHandler {
	return &CharacterHandler{
		cfg:       cfg,
		storage:   store,
		logger:    logger,
		quest:     NewQuestHandler(store, logger),
		combat:    NewCombatHandler(store, logger),
		pois:      NewPOIHandler(cfg, store, logger),
		narrative: NewNarrativeHandler(cfg, store, logger),
		context:   NewContextHandler(cfg, store, logger),
	}
}

// ServeHTTP handles HTTP requests for character operations
// Routes:
// POST /v1/characters                     - Create character
// GET /v1/characters                      - List caller's characters
// GET /v1/characters/{id}                 - Read character by ID
// /v1/characters/{id}/quest               - Quest sub-resource
// /v1/characters/{id}/combat              - Combat sub-resource
// /v1/characters/{id}/pois[...]           - POI sub-resource
// /v1/characters/{id}/narrative           - Narrative history
// /v1/characters/{id}/context             - Director context aggregation
func (h *CharacterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/characters"), "/")

	if path == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			methodNotAllowed(w, h.logger, "POST, GET")
		}
		return
	}

	parts := strings.Split(path, "/")
	characterID := parts[0]
	if _, err := uuid.Parse(characterID); err != nil {
		h.logger.Warn("Invalid character ID", "id", characterID, "error", err)
		writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid character ID format",
		})
		return
	}
	characterID = strings.ToLower(characterID)

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, h.logger, "GET")
			return
		}
		h.handleGet(w, r, characterID)
	case len(parts) == 2 && parts[1] == "quest":
		h.quest.handle(w, r, characterID)
	case len(parts) == 2 && parts[1] == "combat":
		h.combat.handle(w, r, characterID)
	case len(parts) == 2 && parts[1] == "narrative":
		h.narrative.handle(w, r, characterID)
	case len(parts) == 2 && parts[1] == "context":
		h.context.handle(w, r, characterID)
	case parts[1] == "pois" && len(parts) <= 3:
		h.pois.handle(w, r, characterID, parts[2:])
	default:
		writeJSON(w, h.logger, http.StatusNotFound, ErrorResponse{Error: "Unknown resource"})
	}
}

// CreateCharacterRequest defines the request body for creating a character.
// The id is optional; when omitted the server assigns one.
type CreateCharacterRequest struct {
	ID          string                `json:"id,omitempty"`
	PlayerState character.PlayerState `json:"player_state"`
}

func (h *CharacterHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req CreateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}

	req.PlayerState.Identity.Normalize()
	c := character.New(owner, req.PlayerState.Identity)
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, r, h.logger, apperr.Invalid("id", "must be a valid UUID"))
			return
		}
		c.ID = strings.ToLower(id.String())
	}
	if req.PlayerState.Status != "" {
		c.PlayerState.Status = req.PlayerState.Status
	}

	if err := c.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.storage.CreateCharacter(r.Context(), c); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("character created", "character_id", c.ID, "owner_id", owner)
	writeJSON(w, h.logger, http.StatusCreated, c)
}

// ListCharactersResponse carries the owner's character summaries.
type ListCharactersResponse struct {
	Characters []character.Summary `json:"characters"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

func (h *CharacterHandler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	limit, err := queryInt(r, "limit", 20, 1, 100)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	summaries, total, err := h.storage.ListCharacters(r.Context(), owner, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ListCharactersResponse{
		Characters: summaries,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (h *CharacterHandler) handleGet(w http.ResponseWriter, r *http.Request, characterID string) {
	caller, err := callerID(r, false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.storage.GetCharacter(r.Context(), characterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := authorizeRead(c, caller); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, c)
}
