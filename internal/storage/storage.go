// Package storage persists characters and their sub-resources. The Store
// interface is implemented by a Redis-backed store and an in-memory mock for
// tests; both enforce existence, ownership and capacity checks inside the
// same atomic read-modify-write step that performs the write.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// ErrPOINotFound distinguishes a missing POI from a missing character;
// idempotent delete treats only the former as a no-op.
var ErrPOINotFound = apperr.New(apperr.NotFound, "point of interest not found")

// ErrNoChange is returned by an UpdateCharacter mutate callback to signal
// that the operation has nothing to do. The store skips the write entirely,
// leaving updated_at and the owner's activity ordering untouched, and
// reports success.
var ErrNoChange = errors.New("no change")

// Options selects the legacy embedded-POI behavior. When EmbeddedReadFallback
// is set, POI reads fall back to the character's world_pois array while the
// subcollection is empty. When MigrationEnabled is set, the first POI write
// copies the embedded array into the subcollection before applying the write.
type Options struct {
	EmbeddedReadFallback bool
	MigrationEnabled     bool
}

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the storage connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the storage connection
	Close() error
}

// Store defines the interface for character persistence.
//
// All mutations are atomic at the character-document level: the character is
// read, invariants are validated against that read, and the result is
// written, with concurrent conflicting writes causing a retry that re-runs
// the validation. Mutating calls take the caller's owner id and fail with a
// Forbidden error when it does not match the stored owner_id.
type Store interface {
	HealthChecker
	Closer

	// CreateCharacter persists a new character. The (owner, name, race,
	// class) tuple must be unique per owner; duplicates fail with Conflict.
	CreateCharacter(ctx context.Context, c *character.Character) error

	// GetCharacter retrieves a character by id. Missing ids fail with
	// NotFound.
	GetCharacter(ctx context.Context, id string) (*character.Character, error)

	// ListCharacters returns summaries of the owner's characters ordered by
	// updated_at descending, plus the owner's total character count.
	ListCharacters(ctx context.Context, ownerID string, limit, offset int) ([]character.Summary, int, error)

	// UpdateCharacter applies mutate to the freshly loaded character inside
	// an atomic read-modify-write and bumps updated_at. mutate is re-invoked
	// on every retry so invariant checks always run against current state.
	// An error returned by mutate aborts the write and is returned as-is,
	// except ErrNoChange, which skips the write and reports success with the
	// character as loaded.
	UpdateCharacter(ctx context.Context, id, ownerID string, mutate func(*character.Character) error) (*character.Character, error)

	// AppendTurn writes a narrative turn keyed by turn_id. A duplicate
	// turn_id overwrites the prior entry for that id. Returns the total
	// turn count after the append.
	AppendTurn(ctx context.Context, characterID, ownerID string, turn *character.NarrativeTurn) (int, error)

	// QueryTurns returns at most n turns, the most recent ones first
	// filtered to timestamps strictly after since (when non-nil), reversed
	// to chronological order. Also returns the character's total turn count.
	// The character document is not touched: callers have already loaded it
	// for the read-authorization check, and an unknown id yields an empty
	// history rather than NotFound.
	QueryTurns(ctx context.Context, characterID string, n int, since *time.Time) ([]character.NarrativeTurn, int, error)

	// CreatePOI appends a POI, enforcing the capacity ceiling against the
	// current count inside the same atomic step.
	CreatePOI(ctx context.Context, characterID, ownerID string, poi *character.PointOfInterest, capacity int) error

	// ListPOIs returns a page ordered by created_at descending with entries
	// missing a timestamp last, an opaque continuation cursor (empty on the
	// final page), and the total POI count. An unusable cursor fails with
	// BadRequest.
	ListPOIs(ctx context.Context, characterID string, limit int, cursor string) ([]character.PointOfInterest, string, int, error)

	// AllPOIs returns the full POI population in no guaranteed order.
	AllPOIs(ctx context.Context, characterID string) ([]character.PointOfInterest, error)

	// UpdatePOI applies mutate to the stored POI. Missing POIs fail with
	// NotFound.
	UpdatePOI(ctx context.Context, characterID, ownerID, poiID string, mutate func(*character.PointOfInterest) error) (*character.PointOfInterest, error)

	// DeletePOI removes a POI by id. Missing POIs fail with NotFound.
	DeletePOI(ctx context.Context, characterID, ownerID, poiID string) error
}

// identityKey is the per-owner uniqueness tuple for character creation.
func identityKey(id character.Identity) string {
	return id.Name + "|" + id.Race + "|" + id.Class
}

// authorize is the shared existence+ownership gate for mutations.
func authorize(c *character.Character, ownerID string) error {
	if c.OwnerID != ownerID {
		return apperr.New(apperr.Forbidden, "caller does not own this character")
	}
	return nil
}

// EncodeCursor wraps a POI id as an opaque continuation token.
func EncodeCursor(poiID string) string {
	return base64.URLEncoding.EncodeToString([]byte(poiID))
}

// DecodeCursor unwraps a continuation token. Undecodable tokens fail with
// BadRequest instructing the caller to restart pagination.
func DecodeCursor(cursor string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil || len(raw) == 0 {
		return "", apperr.New(apperr.BadRequest, "invalid pagination cursor; restart from the first page")
	}
	return string(raw), nil
}

// sortPOIsNewestFirst orders by created_at descending with zero timestamps
// last; ties and zero timestamps order by id so pagination is stable.
func sortPOIsNewestFirst(pois []character.PointOfInterest) {
	sort.Slice(pois, func(i, j int) bool {
		a, b := pois[i], pois[j]
		az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
		if az != bz {
			return bz // entries with a timestamp come first
		}
		if !az && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
