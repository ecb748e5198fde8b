// Package character defines the persisted game-state entities: the Character
// root aggregate and its quest, combat, point-of-interest and narrative-turn
// sub-resources, along with their validation rules.
package character

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

// SchemaVersion is stamped on every new character document.
const SchemaVersion = "1.0.0"

// MaxArchivedQuests bounds the cleared-quest history; the oldest entries are
// evicted first when the bound is exceeded.
const MaxArchivedQuests = 50

const identityFieldMax = 64

// Status is the three-value health status shared by characters and enemies.
type Status string

const (
	StatusHealthy Status = "Healthy"
	StatusWounded Status = "Wounded"
	StatusDead    Status = "Dead"
)

// Valid reports whether s is one of the three allowed values.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusWounded, StatusDead:
		return true
	}
	return false
}

// Identity holds the character's name, race and class. All three fields are
// whitespace-normalized and limited to 1-64 characters.
type Identity struct {
	Name  string `json:"name"`
	Race  string `json:"race"`
	Class string `json:"class"`
}

// Normalize trims, collapses internal whitespace and NFC-normalizes each
// identity field in place.
func (id *Identity) Normalize() {
	id.Name = normalizeField(id.Name)
	id.Race = normalizeField(id.Race)
	id.Class = normalizeField(id.Class)
}

func normalizeField(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// Validate checks each identity field against the 1-64 character bounds.
// Callers are expected to Normalize first.
func (id Identity) Validate() error {
	for _, f := range []struct {
		path, value string
	}{
		{"player_state.identity.name", id.Name},
		{"player_state.identity.race", id.Race},
		{"player_state.identity.class", id.Class},
	} {
		n := utf8.RuneCountInString(f.value)
		if n == 0 {
			return apperr.Invalid(f.path, "must not be empty")
		}
		if n > identityFieldMax {
			return apperr.Invalid(f.path, "must be at most %d characters (got %d)", identityFieldMax, n)
		}
	}
	return nil
}

// PlayerState is the character's core state. Legacy numeric progression
// fields (level, experience, stats, health) are intentionally not modeled:
// requests carrying them are accepted, but the fields never reach storage or
// a response.
type PlayerState struct {
	Identity Identity `json:"identity"`
	Status   Status   `json:"status"`
}

// Character is the root per-player save-game aggregate. Its ID doubles as
// the storage document key.
type Character struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	PlayerState PlayerState `json:"player_state"`

	ActiveQuest    *Quest          `json:"active_quest"`
	ArchivedQuests []ArchivedQuest `json:"archived_quests,omitempty"`
	CombatState    *CombatState    `json:"combat_state"`

	// WorldPOIs is the legacy embedded POI array. The pois subcollection is
	// authoritative; this field is only read as a migration fallback.
	WorldPOIs []PointOfInterest `json:"world_pois,omitempty"`

	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewID returns a fresh id in the canonical lowercase UUID form used for
// characters, turns and points of interest.
func NewID() string {
	return strings.ToLower(uuid.NewString())
}

// New builds a character with defaults applied. Timestamps are assigned by
// storage on create.
func New(ownerID string, identity Identity) *Character {
	return &Character{
		ID:      NewID(),
		OwnerID: ownerID,
		PlayerState: PlayerState{
			Identity: identity,
			Status:   StatusHealthy,
		},
		SchemaVersion: SchemaVersion,
	}
}

// Validate checks the aggregate's own invariants. Sub-resources validate
// themselves on their own write paths.
func (c *Character) Validate() error {
	if c.ID == "" {
		return apperr.Invalid("id", "must not be empty")
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return apperr.Invalid("owner_id", "must not be empty")
	}
	if !c.PlayerState.Status.Valid() {
		return apperr.Invalid("player_state.status", "must be one of Healthy, Wounded, Dead (got %q)", string(c.PlayerState.Status))
	}
	return c.PlayerState.Identity.Validate()
}

// NormalizeLoaded repairs documents that predate current validation:
// a missing status defaults to Healthy and a missing schema version to the
// current one. Never an error path.
func (c *Character) NormalizeLoaded() {
	if c.PlayerState.Status == "" {
		c.PlayerState.Status = StatusHealthy
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = SchemaVersion
	}
}

// SetQuest installs q as the active quest. The single-active-quest invariant
// is rigid: if a quest is already active the call fails with a Conflict and
// the caller must clear first.
func (c *Character) SetQuest(q *Quest) error {
	if c.ActiveQuest != nil {
		return apperr.New(apperr.Conflict,
			"an active quest already exists for this character; clear the existing quest before setting a new one")
	}
	c.ActiveQuest = q
	return nil
}

// ClearQuest removes the active quest, archiving it with the given cleared
// time. Clearing with no active quest is a pure no-op. Returns whether a
// quest was actually cleared.
func (c *Character) ClearQuest(clearedAt time.Time) bool {
	if c.ActiveQuest == nil {
		return false
	}
	c.ArchivedQuests = append(c.ArchivedQuests, ArchivedQuest{
		Quest:     *c.ActiveQuest,
		ClearedAt: clearedAt,
	})
	if n := len(c.ArchivedQuests); n > MaxArchivedQuests {
		c.ArchivedQuests = c.ArchivedQuests[n-MaxArchivedQuests:]
	}
	c.ActiveQuest = nil
	return true
}

// Summary is the lightweight projection served by the character list.
type Summary struct {
	CharacterID string    `json:"character_id"`
	Name        string    `json:"name"`
	Race        string    `json:"race"`
	Class       string    `json:"class"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary projects the character onto its list representation.
func (c *Character) Summary() Summary {
	return Summary{
		CharacterID: c.ID,
		Name:        c.PlayerState.Identity.Name,
		Race:        c.PlayerState.Identity.Race,
		Class:       c.PlayerState.Identity.Class,
		Status:      c.PlayerState.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Now returns the server timestamp used for all persisted times: UTC with
// microsecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
