package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lorekeeper/chronicle/internal/config"
	"github.com/lorekeeper/chronicle/internal/storage"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// ContextHandler serves the aggregated snapshot the Director consumes: one
// character read plus one bounded history read, with an optional POI sample.
type ContextHandler struct {
	cfg     *config.Config
	storage storage.Store
	logger  *slog.Logger
}

func NewContextHandler(cfg *config.Config, store storage.Store, logger *slog.Logger) *ContextHandler {
	return &ContextHandler{cfg: cfg, storage: store, logger: logger}
}

// ContextResponse has a fixed shape: every top-level field is always
// present. Quest and combat are explicit nulls when absent; the narrative
// and POI sections always appear with their request-echoing metadata, so
// the Director parses one stable schema regardless of character state.
type ContextResponse struct {
	CharacterID    string                `json:"character_id"`
	PlayerState    character.PlayerState `json:"player_state"`
	HasActiveQuest bool                  `json:"has_active_quest"`
	Quest          *character.Quest      `json:"quest"`
	Combat         CombatResponse        `json:"combat"`
	Narrative      ContextNarrative      `json:"narrative"`
	POIs           ContextPOIs           `json:"pois"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

type ContextNarrative struct {
	Turns      []character.NarrativeTurn `json:"turns"`
	RequestedN int                       `json:"requested_n"`
	ReturnedN  int                       `json:"returned_n"`
	MaxN       int                       `json:"max_n"`
}

type ContextPOIs struct {
	Included bool                        `json:"included"`
	Sampled  []character.PointOfInterest `json:"sampled"`
	SampledN int                         `json:"sampled_n"`
	Total    int                         `json:"total"`
}

func (h *ContextHandler) handle(w http.ResponseWriter, r *http.Request, characterID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.logger, "GET")
		return
	}

	caller, err := callerID(r, false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recentN, err := queryInt(r, "recent_n", h.cfg.ContextRecentDefault, 1, h.cfg.ContextRecentMax)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	includePOIs, err := queryBool(r, "include_pois", true)
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

	turns, _, err := h.storage.QueryTurns(r.Context(), characterID, recentN, nil)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pois := ContextPOIs{Included: includePOIs, Sampled: []character.PointOfInterest{}}
	if includePOIs {
		all, err := h.storage.AllPOIs(r.Context(), characterID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		sampleN := h.cfg.POISampleDefault
		if sampleN > h.cfg.ContextPOISampleMax {
			sampleN = h.cfg.ContextPOISampleMax
		}
		pois.Sampled = samplePOIs(all, sampleN)
		pois.SampledN = len(pois.Sampled)
		pois.Total = len(all)
	}

	writeJSON(w, h.logger, http.StatusOK, ContextResponse{
		CharacterID:    c.ID,
		PlayerState:    c.PlayerState,
		HasActiveQuest: c.ActiveQuest != nil,
		Quest:          c.ActiveQuest,
		Combat:         deriveCombat(h.logger, c),
		Narrative: ContextNarrative{
			Turns:      turns,
			RequestedN: recentN,
			ReturnedN:  len(turns),
			MaxN:       h.cfg.ContextRecentMax,
		},
		POIs:      pois,
		UpdatedAt: c.UpdatedAt,
	})
}
