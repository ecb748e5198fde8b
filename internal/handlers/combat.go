package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// CombatHandler manages the combat_state slot with full-replacement
// semantics.
type CombatHandler struct {
	storage storage.Store
	logger  *slog.Logger
}

func NewCombatHandler(store storage.Store, logger *slog.Logger) *CombatHandler {
	return &CombatHandler{storage: store, logger: logger}
}

// CombatResponse reports the derived active flag alongside the state. Active
// is never stored, so it cannot drift from the enemy roster.
type CombatResponse struct {
	Active bool                   `json:"active"`
	State  *character.CombatState `json:"state"`
}

func (h *CombatHandler) handle(w http.ResponseWriter, r *http.Request, characterID string) {
	switch r.Method {
	case http.MethodPut:
		h.handleUpdate(w, r, characterID)
	case http.MethodGet:
		h.handleGet(w, r, characterID)
	default:
		methodNotAllowed(w, h.logger, "PUT, GET")
	}
}

func (h *CombatHandler) handleUpdate(w http.ResponseWriter, r *http.Request, characterID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// A JSON null body clears combat; anything else is a wholesale
	// replacement.
	var state *character.CombatState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}
	if state != nil {
		state.Normalize()
		if err := state.Validate(); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	_, err = h.storage.UpdateCharacter(r.Context(), characterID, owner, func(c *character.Character) error {
		c.CombatState = state
		return nil
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("combat state updated", "character_id", characterID, "active", state.Active())
	writeJSON(w, h.logger, http.StatusOK, CombatResponse{Active: state.Active(), State: state})
}

func (h *CombatHandler) handleGet(w http.ResponseWriter, r *http.Request, characterID string) {
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

	writeJSON(w, h.logger, http.StatusOK, deriveCombat(h.logger, c))
}

// deriveCombat builds the read-side combat envelope. Stored rosters above
// the enemy bound (data predating validation) are reported as inactive with
// a warning, never surfaced and never an error.
func deriveCombat(logger *slog.Logger, c *character.Character) CombatResponse {
	cs := c.CombatState
	if cs != nil && len(cs.Enemies) > character.MaxEnemies {
		logger.Warn("stored combat state exceeds enemy bound, reporting inactive",
			"character_id", c.ID, "enemies", len(cs.Enemies))
		return CombatResponse{Active: false, State: nil}
	}
	if !cs.Active() {
		return CombatResponse{Active: false, State: nil}
	}
	return CombatResponse{Active: true, State: cs}
}
