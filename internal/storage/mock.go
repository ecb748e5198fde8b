package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// MockStore is an in-memory implementation of Store for testing. It mirrors
// the Redis store's semantics, including the embedded-POI fallback and
// copy-on-write migration, with a single mutex standing in for the backend
// transaction.
type MockStore struct {
	mu         sync.RWMutex
	opts       Options
	characters map[string]*character.Character
	turns      map[string]map[string]character.NarrativeTurn
	pois       map[string]map[string]character.PointOfInterest
	identities map[string]map[string]string // ownerID -> tuple -> characterID
	pingError  error
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock store
func NewMockStore(opts Options) *MockStore {
	return &MockStore{
		opts:       opts,
		characters: make(map[string]*character.Character),
		turns:      make(map[string]map[string]character.NarrativeTurn),
		pois:       make(map[string]map[string]character.PointOfInterest),
		identities: make(map[string]map[string]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStore) Close() error {
	return nil
}

// clone deep-copies a character through JSON so callers never share state
// with the store.
func cloneCharacter(c *character.Character) *character.Character {
	data, _ := json.Marshal(c)
	var out character.Character
	_ = json.Unmarshal(data, &out)
	return &out
}

func (m *MockStore) CreateCharacter(ctx context.Context, c *character.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.characters[c.ID]; exists {
		return apperr.New(apperr.Conflict, "character id already exists")
	}

	tuple := identityKey(c.PlayerState.Identity)
	owned := m.identities[c.OwnerID]
	if owned == nil {
		owned = make(map[string]string)
		m.identities[c.OwnerID] = owned
	}
	if _, taken := owned[tuple]; taken {
		return apperr.New(apperr.Conflict,
			"a character with this name, race and class already exists for this owner")
	}

	now := character.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	owned[tuple] = c.ID
	m.characters[c.ID] = cloneCharacter(c)
	return nil
}

func (m *MockStore) GetCharacter(ctx context.Context, id string) (*character.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.characters[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "character not found")
	}
	out := cloneCharacter(c)
	out.NormalizeLoaded()
	return out, nil
}

func (m *MockStore) ListCharacters(ctx context.Context, ownerID string, limit, offset int) ([]character.Summary, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []*character.Character
	for _, c := range m.characters {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	// Newest activity first, id as the tiebreak.
	sortCharactersByActivity(owned)

	total := len(owned)
	if offset >= len(owned) {
		return []character.Summary{}, total, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}

	summaries := make([]character.Summary, 0, len(owned))
	for _, c := range owned {
		summaries = append(summaries, c.Summary())
	}
	return summaries, total, nil
}

func (m *MockStore) UpdateCharacter(ctx context.Context, id, ownerID string, mutate func(*character.Character) error) (*character.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.characters[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "character not found")
	}
	if err := authorize(stored, ownerID); err != nil {
		return nil, err
	}

	working := cloneCharacter(stored)
	working.NormalizeLoaded()
	oldTuple := identityKey(working.PlayerState.Identity)

	if err := mutate(working); err != nil {
		if errors.Is(err, ErrNoChange) {
			return working, nil
		}
		return nil, err
	}
	if working.ID != id || working.OwnerID != ownerID {
		return nil, apperr.New(apperr.Internal, "mutation must not change character id or owner")
	}
	working.UpdatedAt = character.Now()

	newTuple := identityKey(working.PlayerState.Identity)
	if newTuple != oldTuple {
		owned := m.identities[ownerID]
		if _, taken := owned[newTuple]; taken {
			return nil, apperr.New(apperr.Conflict,
				"a character with this name, race and class already exists for this owner")
		}
		delete(owned, oldTuple)
		if owned == nil {
			owned = make(map[string]string)
			m.identities[ownerID] = owned
		}
		owned[newTuple] = id
	}

	m.characters[id] = cloneCharacter(working)
	return working, nil
}

func (m *MockStore) AppendTurn(ctx context.Context, characterID, ownerID string, turn *character.NarrativeTurn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.characters[characterID]
	if !ok {
		return 0, apperr.New(apperr.NotFound, "character not found")
	}
	if err := authorize(c, ownerID); err != nil {
		return 0, err
	}

	byID := m.turns[characterID]
	if byID == nil {
		byID = make(map[string]character.NarrativeTurn)
		m.turns[characterID] = byID
	}
	byID[turn.TurnID] = *turn
	return len(byID), nil
}

func (m *MockStore) QueryTurns(ctx context.Context, characterID string, n int, since *time.Time) ([]character.NarrativeTurn, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]character.NarrativeTurn, 0, len(m.turns[characterID]))
	for _, t := range m.turns[characterID] {
		all = append(all, t)
	}
	total := len(all)

	if since != nil {
		filtered := all[:0]
		for _, t := range all {
			if t.Timestamp.After(*since) {
				filtered = append(filtered, t)
			}
		}
		all = filtered
	}

	// Newest first for the bounded select, then reversed to chronological.
	sortTurnsNewestFirst(all)
	if len(all) > n {
		all = all[:n]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	out := make([]character.NarrativeTurn, len(all))
	copy(out, all)
	return out, total, nil
}

// poisLocked returns the character's POI map, applying the copy-on-write
// migration first when forWrite is set. Callers hold the write lock.
func (m *MockStore) poisLocked(c *character.Character, forWrite bool) map[string]character.PointOfInterest {
	byID := m.pois[c.ID]
	if len(byID) == 0 && forWrite && m.opts.MigrationEnabled && len(c.WorldPOIs) > 0 {
		byID = make(map[string]character.PointOfInterest, len(c.WorldPOIs))
		for _, p := range migrationEntries(c) {
			byID[p.ID] = p
		}
		m.pois[c.ID] = byID
	}
	if byID == nil {
		byID = make(map[string]character.PointOfInterest)
		m.pois[c.ID] = byID
	}
	return byID
}

func (m *MockStore) CreatePOI(ctx context.Context, characterID, ownerID string, poi *character.PointOfInterest, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.characters[characterID]
	if !ok {
		return apperr.New(apperr.NotFound, "character not found")
	}
	if err := authorize(c, ownerID); err != nil {
		return err
	}

	byID := m.poisLocked(c, true)
	if len(byID) >= capacity {
		return apperr.Newf(apperr.BadRequest,
			"point of interest capacity reached (%d); delete an entry before adding another", capacity)
	}

	if poi.ID == "" {
		poi.ID = character.NewID()
	}
	if poi.CreatedAt.IsZero() {
		poi.CreatedAt = character.Now()
	}
	byID[poi.ID] = *poi
	c.UpdatedAt = character.Now()
	return nil
}

func (m *MockStore) ListPOIs(ctx context.Context, characterID string, limit int, cursor string) ([]character.PointOfInterest, string, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.characters[characterID]
	if !ok {
		return nil, "", 0, apperr.New(apperr.NotFound, "character not found")
	}

	byID := m.pois[characterID]
	if len(byID) == 0 {
		if m.opts.EmbeddedReadFallback && len(c.WorldPOIs) > 0 {
			return listEmbeddedPOIs(c, limit, cursor)
		}
		if cursor != "" {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
		return []character.PointOfInterest{}, "", 0, nil
	}

	pois := make([]character.PointOfInterest, 0, len(byID))
	for _, p := range byID {
		pois = append(pois, p)
	}
	sortPOIsNewestFirst(pois)

	start := 0
	if cursor != "" {
		poiID, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", 0, err
		}
		if strings.HasPrefix(poiID, embeddedCursorPrefix) {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
		found := false
		for i, p := range pois {
			if p.ID == poiID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
	}

	total := len(pois)
	end := start + limit
	if end > total {
		end = total
	}
	page := make([]character.PointOfInterest, end-start)
	copy(page, pois[start:end])

	next := ""
	if end < total {
		next = EncodeCursor(pois[end-1].ID)
	}
	return page, next, total, nil
}

func (m *MockStore) AllPOIs(ctx context.Context, characterID string) ([]character.PointOfInterest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.characters[characterID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "character not found")
	}

	byID := m.pois[characterID]
	if len(byID) == 0 {
		if m.opts.EmbeddedReadFallback && len(c.WorldPOIs) > 0 {
			out := make([]character.PointOfInterest, len(c.WorldPOIs))
			copy(out, c.WorldPOIs)
			return out, nil
		}
		return []character.PointOfInterest{}, nil
	}

	out := make([]character.PointOfInterest, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockStore) UpdatePOI(ctx context.Context, characterID, ownerID, poiID string, mutate func(*character.PointOfInterest) error) (*character.PointOfInterest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.characters[characterID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "character not found")
	}
	if err := authorize(c, ownerID); err != nil {
		return nil, err
	}

	byID := m.poisLocked(c, true)
	p, ok := byID[poiID]
	if !ok {
		return nil, ErrPOINotFound
	}
	if err := mutate(&p); err != nil {
		return nil, err
	}
	p.ID = poiID
	byID[poiID] = p
	c.UpdatedAt = character.Now()

	out := p
	return &out, nil
}

func (m *MockStore) DeletePOI(ctx context.Context, characterID, ownerID, poiID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.characters[characterID]
	if !ok {
		return apperr.New(apperr.NotFound, "character not found")
	}
	if err := authorize(c, ownerID); err != nil {
		return err
	}

	byID := m.poisLocked(c, true)
	if _, ok := byID[poiID]; !ok {
		return ErrPOINotFound
	}
	delete(byID, poiID)
	c.UpdatedAt = character.Now()
	return nil
}

func sortCharactersByActivity(chars []*character.Character) {
	sort.SliceStable(chars, func(i, j int) bool {
		a, b := chars[i], chars[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

func sortTurnsNewestFirst(turns []character.NarrativeTurn) {
	sort.SliceStable(turns, func(i, j int) bool {
		a, b := turns[i], turns[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.TurnID < b.TurnID
	})
}
