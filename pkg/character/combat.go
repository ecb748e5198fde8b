package character

import (
	"fmt"
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

// MaxEnemies bounds the combat roster. Submissions above the bound are
// rejected before any write; stored rosters above it (data predating
// validation) are refused on read rather than surfaced.
const MaxEnemies = 5

// Enemy is one combatant on the roster.
type Enemy struct {
	EnemyID  string         `json:"enemy_id"`
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Weapon   string         `json:"weapon,omitempty"`
	Traits   []string       `json:"traits,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CombatState is the current combat encounter. It is replaced wholesale on
// every update; there are no partial enemy edits.
//
// Whether combat is active is never stored: it is recomputed from the enemy
// roster on every read so it cannot drift (see Active).
type CombatState struct {
	CombatID         string         `json:"combat_id"`
	StartedAt        time.Time      `json:"started_at"`
	Turn             int            `json:"turn"`
	Enemies          []Enemy        `json:"enemies"`
	PlayerConditions map[string]any `json:"player_conditions,omitempty"`
}

// Active reports whether combat is live: at least one enemy with a status
// other than Dead. Empty rosters and nil states are inactive.
func (cs *CombatState) Active() bool {
	if cs == nil {
		return false
	}
	for _, e := range cs.Enemies {
		if e.Status != StatusDead {
			return true
		}
	}
	return false
}

// Normalize applies write-path defaults: a zero turn counter becomes 1.
func (cs *CombatState) Normalize() {
	if cs.Turn == 0 {
		cs.Turn = 1
	}
}

// Validate checks the roster bound and every enemy field. Unknown statuses
// are a hard failure, never coerced.
func (cs *CombatState) Validate() error {
	if strings.TrimSpace(cs.CombatID) == "" {
		return apperr.Invalid("combat_state.combat_id", "must not be empty")
	}
	if cs.StartedAt.IsZero() {
		return apperr.Invalid("combat_state.started_at", "must not be empty")
	}
	if cs.Turn < 1 {
		return apperr.Invalid("combat_state.turn", "must be at least 1 (got %d)", cs.Turn)
	}
	if len(cs.Enemies) > MaxEnemies {
		return apperr.Invalid("combat_state.enemies",
			"at most %d enemies are allowed (got %d)", MaxEnemies, len(cs.Enemies))
	}
	for i, e := range cs.Enemies {
		path := fmt.Sprintf("combat_state.enemies[%d]", i)
		if strings.TrimSpace(e.EnemyID) == "" {
			return apperr.Invalid(path+".enemy_id", "must not be empty")
		}
		if strings.TrimSpace(e.Name) == "" {
			return apperr.Invalid(path+".name", "must not be empty")
		}
		if !e.Status.Valid() {
			return apperr.Invalid(path+".status",
				"must be one of Healthy, Wounded, Dead (got %q)", string(e.Status))
		}
	}
	return nil
}
