package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/internal/config"
	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// NarrativeHandler manages the append-only turn history.
type NarrativeHandler struct {
	cfg     *config.Config
	storage storage.Store
	logger  *slog.Logger
}

func NewNarrativeHandler(cfg *config.Config, store storage.Store, logger *slog.Logger) *NarrativeHandler {
	return &NarrativeHandler{cfg: cfg, storage: store, logger: logger}
}

func (h *NarrativeHandler) handle(w http.ResponseWriter, r *http.Request, characterID string) {
	switch r.Method {
	case http.MethodPost:
		h.handleAppend(w, r, characterID)
	case http.MethodGet:
		h.handleQuery(w, r, characterID)
	default:
		methodNotAllowed(w, h.logger, "POST, GET")
	}
}

// AppendTurnRequest is the turn draft. turn_id and timestamp default
// server-side; a caller-supplied duplicate turn_id overwrites the prior
// entry for that id.
type AppendTurnRequest struct {
	TurnID       string         `json:"turn_id,omitempty"`
	TurnNumber   *int           `json:"turn_number,omitempty"`
	PlayerAction string         `json:"player_action"`
	GMResponse   string         `json:"gm_response"`
	Timestamp    time.Time      `json:"timestamp,omitzero"`
	Snapshot     map[string]any `json:"game_state_snapshot,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AppendTurnResponse returns the stored turn and the character's total turn
// count after the append.
type AppendTurnResponse struct {
	Turn       character.NarrativeTurn `json:"turn"`
	TotalTurns int                     `json:"total_turns"`
}

func (h *NarrativeHandler) handleAppend(w http.ResponseWriter, r *http.Request, characterID string) {
	owner, err := callerID(r, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req AppendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.BadRequest, "Invalid JSON in request body"))
		return
	}

	turn := character.NarrativeTurn{
		TurnID:       req.TurnID,
		TurnNumber:   req.TurnNumber,
		PlayerAction: req.PlayerAction,
		GMResponse:   req.GMResponse,
		Timestamp:    req.Timestamp,
		Snapshot:     req.Snapshot,
		Metadata:     req.Metadata,
	}
	if turn.TurnID == "" {
		turn.TurnID = character.NewID()
	} else {
		id, err := uuid.Parse(turn.TurnID)
		if err != nil {
			writeError(w, r, h.logger, apperr.Invalid("turn_id", "must be a valid UUID"))
			return
		}
		turn.TurnID = strings.ToLower(id.String())
	}
	if turn.TurnNumber != nil && *turn.TurnNumber < 1 {
		writeError(w, r, h.logger, apperr.Invalid("turn_number", "must be at least 1"))
		return
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = character.Now()
	}
	if err := turn.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	total, err := h.storage.AppendTurn(r.Context(), characterID, owner, &turn)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("turn appended", "character_id", characterID, "turn_id", turn.TurnID, "total_turns", total)
	writeJSON(w, h.logger, http.StatusCreated, AppendTurnResponse{Turn: turn, TotalTurns: total})
}

// QueryTurnsResponse is the bounded recent-history window in chronological
// order, with the request-echoing metadata the Director parses.
type QueryTurnsResponse struct {
	Turns          []character.NarrativeTurn `json:"turns"`
	RequestedN     int                       `json:"requested_n"`
	ReturnedCount  int                       `json:"returned_count"`
	TotalAvailable int                       `json:"total_available"`
}

func (h *NarrativeHandler) handleQuery(w http.ResponseWriter, r *http.Request, characterID string) {
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

	n, err := queryInt(r, "n", h.cfg.NarrativeQueryDefault, 1, h.cfg.NarrativeQueryMax)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	turns, total, err := h.storage.QueryTurns(r.Context(), characterID, n, since)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, QueryTurnsResponse{
		Turns:          turns,
		RequestedN:     n,
		ReturnedCount:  len(turns),
		TotalAvailable: total,
	})
}
