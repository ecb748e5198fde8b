package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// QuestHandler manages the single active quest slot.
type QuestHandler struct {
	storage storage.Store
	logger  *slog.Logger
}

func NewQuestHandler(store storage.Store, logger *slog.Logger) *QuestHandler {
	return &QuestHandler{storage: store, logger: logger}
}

// QuestResponse always carries the slot explicitly; null means no active
// quest.
type QuestResponse struct {
	ActiveQuest *character.Quest `json:"active_quest"`
}

func (h *QuestHandler) handle(w http.ResponseWriter, r *http.Request, characterID string) {
	switch r.Method {
	case http.MethodPut:
		h.handleSet(w, r, characterID)
	case http.MethodGet:
		h.handleGet(w, r, characterID)
	case http.MethodDelete:
		h.handleClear(w, r, characterID)
	default:
		methodNotAllowed(w, h.logger, "PUT, GET, DELETE")
	}
}

func (h *QuestHandler) handleSet(w http.ResponseWriter, r *http.Request, characterID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var quest character.Quest
	if err := json.NewDecoder(r.Body).Decode(&quest); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}
	if err := quest.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	quest.UpdatedAt = character.Now()

	// SetQuest re-checks the single-active-quest invariant on every
	// transaction attempt.
	_, err = h.storage.UpdateCharacter(r.Context(), characterID, owner, func(c *character.Character) error {
		return c.SetQuest(&quest)
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("quest set", "character_id", characterID, "quest", quest.Name)
	writeJSON(w, h.logger, http.StatusOK, QuestResponse{ActiveQuest: &quest})
}

func (h *QuestHandler) handleGet(w http.ResponseWriter, r *http.Request, characterID string) {
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

	writeJSON(w, h.logger, http.StatusOK, QuestResponse{ActiveQuest: c.ActiveQuest})
}

func (h *QuestHandler) handleClear(w http.ResponseWriter, r *http.Request, characterID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// An empty slot is a pure no-op: ErrNoChange keeps the store from
	// rewriting the document, so updated_at stays put.
	var cleared bool
	_, err = h.storage.UpdateCharacter(r.Context(), characterID, owner, func(c *character.Character) error {
		if !c.ClearQuest(character.Now()) {
			return storage.ErrNoChange
		}
		cleared = true
		return nil
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if cleared {
		h.logger.Info("quest cleared", "character_id", characterID)
	}
	w.WriteHeader(http.StatusNoContent)
}
