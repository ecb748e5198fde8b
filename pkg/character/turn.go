package character

import (
	"time"
	"unicode/utf8"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

const (
	MaxPlayerActionLen = 8000
	MaxGMResponseLen   = 32000
	// MaxTurnCombinedLen caps player_action + gm_response together so one
	// turn can never dominate a context window.
	MaxTurnCombinedLen = 40000
)

// NarrativeTurn is one player-action/GM-response pair in the append-only
// history log. Turns are keyed by turn_id: writing a duplicate id overwrites
// the prior entry for that id (at-most-one-document-per-id), it is not an
// error.
type NarrativeTurn struct {
	TurnID       string         `json:"turn_id"`
	TurnNumber   *int           `json:"turn_number,omitempty"`
	PlayerAction string         `json:"player_action"`
	GMResponse   string         `json:"gm_response"`
	Timestamp    time.Time      `json:"timestamp"`
	Snapshot     map[string]any `json:"game_state_snapshot,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Validate checks the field-length ceilings.
func (t *NarrativeTurn) Validate() error {
	actionLen := utf8.RuneCountInString(t.PlayerAction)
	responseLen := utf8.RuneCountInString(t.GMResponse)
	if actionLen < 1 || actionLen > MaxPlayerActionLen {
		return apperr.Invalid("player_action", "must be 1-%d characters (got %d)", MaxPlayerActionLen, actionLen)
	}
	if responseLen < 1 || responseLen > MaxGMResponseLen {
		return apperr.Invalid("gm_response", "must be 1-%d characters (got %d)", MaxGMResponseLen, responseLen)
	}
	if combined := actionLen + responseLen; combined > MaxTurnCombinedLen {
		return apperr.Invalid("player_action",
			"combined length of player_action and gm_response must be at most %d characters (got %d)",
			MaxTurnCombinedLen, combined)
	}
	return nil
}
