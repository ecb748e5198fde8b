package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lorekeeper/chronicle/pkg/apperr"
	"github.com/lorekeeper/chronicle/pkg/character"
)

// maxTxRetries bounds optimistic-transaction retries on concurrent writes.
// Every retry re-runs the full read-validate-write cycle.
const maxTxRetries = 5

// embeddedCursorPrefix marks continuation tokens issued while serving pages
// from the legacy embedded array. They stop validating once the
// subcollection takes over, which forces the caller to restart pagination.
const embeddedCursorPrefix = "embedded:"

// RedisStore implements Store on Redis. Character documents are JSON
// strings; turns and POIs live in per-character hashes with sorted-set
// timestamp indexes; per-owner sorted sets index characters by updated_at.
type RedisStore struct {
	client *redis.Client
	prefix string
	opts   Options
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store instance
func NewRedisStore(redisURL, prefix string, opts Options, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	return &RedisStore{
		client: rdb,
		prefix: prefix,
		opts:   opts,
		logger: logger,
	}
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client, prefix string, opts Options, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, opts: opts, logger: logger}
}

func (s *RedisStore) characterKey(id string) string {
	return s.prefix + ":character:" + id
}

func (s *RedisStore) turnsKey(id string) string {
	return s.characterKey(id) + ":turns"
}

func (s *RedisStore) turnsIndexKey(id string) string {
	return s.characterKey(id) + ":turns:byts"
}

func (s *RedisStore) poisKey(id string) string {
	return s.characterKey(id) + ":pois"
}

func (s *RedisStore) poisIndexKey(id string) string {
	return s.characterKey(id) + ":pois:byts"
}

func (s *RedisStore) ownerCharactersKey(ownerID string) string {
	return s.prefix + ":owner:" + ownerID + ":characters"
}

func (s *RedisStore) ownerIdentitiesKey(ownerID string) string {
	return s.prefix + ":owner:" + ownerID + ":identities"
}

func (s *RedisStore) Ping(ctx context.Context) error {
	cmd := s.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	s.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	s.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection pings until the backend is reachable or ctx expires.
func (s *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := s.Ping(ctx); err != nil {
			s.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		s.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// unavailable wraps backend failures so handlers surface a generic storage
// error instead of driver details.
func unavailable(op string, err error) error {
	return apperr.Wrap(apperr.Unavailable, err, "storage unavailable during "+op)
}

// isAppError reports whether err already carries an application error kind.
func isAppError(err error) bool {
	var ae *apperr.Error
	return errors.As(err, &ae)
}

// watch runs txf under optimistic locking on keys, retrying on conflicting
// concurrent writes.
func (s *RedisStore) watch(ctx context.Context, op string, txf func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("transaction conflict, retrying", "op", op, "attempt", i+1)
			continue
		}
		if isAppError(err) {
			return err
		}
		return unavailable(op, err)
	}
	return unavailable(op, fmt.Errorf("transaction conflict persisted after %d attempts", maxTxRetries))
}

func timestampScore(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro())
}

func (s *RedisStore) loadCharacter(ctx context.Context, c redis.Cmdable, id string) (*character.Character, error) {
	raw, err := c.Get(ctx, s.characterKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.NotFound, "character not found")
	}
	if err != nil {
		return nil, unavailable("character read", err)
	}

	var ch character.Character
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to decode stored character")
	}
	ch.NormalizeLoaded()
	return &ch, nil
}

func (s *RedisStore) CreateCharacter(ctx context.Context, c *character.Character) error {
	now := character.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	data, err := json.Marshal(c)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to encode character")
	}

	idKey := s.ownerIdentitiesKey(c.OwnerID)
	tuple := identityKey(c.PlayerState.Identity)

	txf := func(tx *redis.Tx) error {
		claimed, err := tx.HExists(ctx, idKey, tuple).Result()
		if err != nil {
			return unavailable("character create", err)
		}
		if claimed {
			return apperr.New(apperr.Conflict,
				"a character with this name, race and class already exists for this owner")
		}
		exists, err := tx.Exists(ctx, s.characterKey(c.ID)).Result()
		if err != nil {
			return unavailable("character create", err)
		}
		if exists > 0 {
			return apperr.New(apperr.Conflict, "character id already exists")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.characterKey(c.ID), data, 0)
			pipe.HSet(ctx, idKey, tuple, c.ID)
			pipe.ZAdd(ctx, s.ownerCharactersKey(c.OwnerID), redis.Z{
				Score:  timestampScore(now),
				Member: c.ID,
			})
			return nil
		})
		return err
	}

	return s.watch(ctx, "character create", txf, idKey, s.characterKey(c.ID))
}

func (s *RedisStore) GetCharacter(ctx context.Context, id string) (*character.Character, error) {
	return s.loadCharacter(ctx, s.client, id)
}

func (s *RedisStore) ListCharacters(ctx context.Context, ownerID string, limit, offset int) ([]character.Summary, int, error) {
	indexKey := s.ownerCharactersKey(ownerID)

	total, err := s.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, 0, unavailable("character list", err)
	}

	ids, err := s.client.ZRevRange(ctx, indexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, unavailable("character list", err)
	}

	summaries := make([]character.Summary, 0, len(ids))
	for _, id := range ids {
		ch, err := s.loadCharacter(ctx, s.client, id)
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				// Index entry without a document; skip rather than fail the
				// whole listing.
				s.logger.Warn("owner index references missing character",
					"character_id", id, "owner_id", ownerID)
				continue
			}
			return nil, 0, err
		}
		summaries = append(summaries, ch.Summary())
	}
	return summaries, int(total), nil
}

func (s *RedisStore) UpdateCharacter(ctx context.Context, id, ownerID string, mutate func(*character.Character) error) (*character.Character, error) {
	var result *character.Character
	key := s.characterKey(id)
	idKey := s.ownerIdentitiesKey(ownerID)

	txf := func(tx *redis.Tx) error {
		ch, err := s.loadCharacter(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(ch, ownerID); err != nil {
			return err
		}

		oldTuple := identityKey(ch.PlayerState.Identity)
		if err := mutate(ch); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = ch
				return nil
			}
			return err
		}
		if ch.ID != id || ch.OwnerID != ownerID {
			return apperr.New(apperr.Internal, "mutation must not change character id or owner")
		}
		ch.UpdatedAt = character.Now()

		newTuple := identityKey(ch.PlayerState.Identity)
		if newTuple != oldTuple {
			claimed, err := tx.HExists(ctx, idKey, newTuple).Result()
			if err != nil {
				return unavailable("character update", err)
			}
			if claimed {
				return apperr.New(apperr.Conflict,
					"a character with this name, race and class already exists for this owner")
			}
		}

		data, err := json.Marshal(ch)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to encode character")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.ownerCharactersKey(ownerID), redis.Z{
				Score:  timestampScore(ch.UpdatedAt),
				Member: id,
			})
			if newTuple != oldTuple {
				pipe.HDel(ctx, idKey, oldTuple)
				pipe.HSet(ctx, idKey, newTuple, id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = ch
		return nil
	}

	// The identities hash is watched too so a concurrent rename to the same
	// tuple by another transaction forces a retry of the uniqueness check.
	if err := s.watch(ctx, "character update", txf, key, idKey); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, characterID, ownerID string, turn *character.NarrativeTurn) (int, error) {
	ch, err := s.loadCharacter(ctx, s.client, characterID)
	if err != nil {
		return 0, err
	}
	if err := authorize(ch, ownerID); err != nil {
		return 0, err
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "failed to encode turn")
	}

	// Turn appends write distinct hash fields and never touch the character
	// document, so they need no optimistic lock. A duplicate turn_id simply
	// replaces the prior entry.
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.turnsKey(characterID), turn.TurnID, data)
	pipe.ZAdd(ctx, s.turnsIndexKey(characterID), redis.Z{
		Score:  timestampScore(turn.Timestamp),
		Member: turn.TurnID,
	})
	countCmd := pipe.ZCard(ctx, s.turnsIndexKey(characterID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable("turn append", err)
	}
	return int(countCmd.Val()), nil
}

func (s *RedisStore) QueryTurns(ctx context.Context, characterID string, n int, since *time.Time) ([]character.NarrativeTurn, int, error) {
	indexKey := s.turnsIndexKey(characterID)
	total, err := s.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, 0, unavailable("turn query", err)
	}

	min := "-inf"
	if since != nil {
		// Strictly greater than the boundary.
		min = "(" + strconv.FormatInt(since.UnixMicro(), 10)
	}
	ids, err := s.client.ZRevRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min:   min,
		Max:   "+inf",
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, 0, unavailable("turn query", err)
	}
	if len(ids) == 0 {
		return []character.NarrativeTurn{}, int(total), nil
	}

	raws, err := s.client.HMGet(ctx, s.turnsKey(characterID), ids...).Result()
	if err != nil {
		return nil, 0, unavailable("turn query", err)
	}

	// Selected newest-first; reverse into chronological order.
	turns := make([]character.NarrativeTurn, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		raw, ok := raws[i].(string)
		if !ok {
			continue
		}
		var t character.NarrativeTurn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, 0, apperr.Wrap(apperr.Internal, err, "failed to decode stored turn")
		}
		turns = append(turns, t)
	}
	return turns, int(total), nil
}

// migrationEntries prepares the legacy embedded array for the subcollection.
// Copies get ids assigned when missing so they become addressable.
func migrationEntries(c *character.Character) []character.PointOfInterest {
	entries := make([]character.PointOfInterest, len(c.WorldPOIs))
	copy(entries, c.WorldPOIs)
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = character.NewID()
		}
	}
	return entries
}

func (s *RedisStore) CreatePOI(ctx context.Context, characterID, ownerID string, poi *character.PointOfInterest, capacity int) error {
	charKey := s.characterKey(characterID)
	poisKey := s.poisKey(characterID)

	txf := func(tx *redis.Tx) error {
		ch, err := s.loadCharacter(ctx, tx, characterID)
		if err != nil {
			return err
		}
		if err := authorize(ch, ownerID); err != nil {
			return err
		}

		count, err := tx.HLen(ctx, poisKey).Result()
		if err != nil {
			return unavailable("poi create", err)
		}

		var migrated []character.PointOfInterest
		if count == 0 && s.opts.MigrationEnabled && len(ch.WorldPOIs) > 0 {
			migrated = migrationEntries(ch)
			count = int64(len(migrated))
		}

		if int(count) >= capacity {
			return apperr.Newf(apperr.BadRequest,
				"point of interest capacity reached (%d); delete an entry before adding another", capacity)
		}

		if poi.ID == "" {
			poi.ID = character.NewID()
		}
		if poi.CreatedAt.IsZero() {
			poi.CreatedAt = character.Now()
		}
		ch.UpdatedAt = character.Now()

		charData, err := json.Marshal(ch)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to encode character")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range append(migrated, *poi) {
				data, err := json.Marshal(m)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, poisKey, m.ID, data)
				pipe.ZAdd(ctx, s.poisIndexKey(characterID), redis.Z{
					Score:  timestampScore(m.CreatedAt),
					Member: m.ID,
				})
			}
			pipe.Set(ctx, charKey, charData, 0)
			pipe.ZAdd(ctx, s.ownerCharactersKey(ownerID), redis.Z{
				Score:  timestampScore(ch.UpdatedAt),
				Member: characterID,
			})
			return nil
		})
		return err
	}

	return s.watch(ctx, "poi create", txf, charKey, poisKey)
}

func (s *RedisStore) ListPOIs(ctx context.Context, characterID string, limit int, cursor string) ([]character.PointOfInterest, string, int, error) {
	poisKey := s.poisKey(characterID)
	indexKey := s.poisIndexKey(characterID)

	total, err := s.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, "", 0, unavailable("poi list", err)
	}

	if total == 0 {
		ch, err := s.loadCharacter(ctx, s.client, characterID)
		if err != nil {
			return nil, "", 0, err
		}
		if s.opts.EmbeddedReadFallback && len(ch.WorldPOIs) > 0 {
			return listEmbeddedPOIs(ch, limit, cursor)
		}
		if cursor != "" {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
		return []character.PointOfInterest{}, "", 0, nil
	}

	start := int64(0)
	if cursor != "" {
		poiID, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", 0, err
		}
		rank, err := s.client.ZRevRank(ctx, indexKey, poiID).Result()
		if errors.Is(err, redis.Nil) {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
		if err != nil {
			return nil, "", 0, unavailable("poi list", err)
		}
		start = rank + 1
	}

	ids, err := s.client.ZRevRange(ctx, indexKey, start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, "", 0, unavailable("poi list", err)
	}
	if len(ids) == 0 {
		return []character.PointOfInterest{}, "", int(total), nil
	}

	raws, err := s.client.HMGet(ctx, poisKey, ids...).Result()
	if err != nil {
		return nil, "", 0, unavailable("poi list", err)
	}

	pois := make([]character.PointOfInterest, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var p character.PointOfInterest
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, "", 0, apperr.Wrap(apperr.Internal, err, "failed to decode stored poi")
		}
		pois = append(pois, p)
	}

	next := ""
	if start+int64(len(ids)) < total {
		next = EncodeCursor(ids[len(ids)-1])
	}
	return pois, next, int(total), nil
}

// listEmbeddedPOIs pages over the legacy world_pois array. Cursors issued
// here encode an array position into the sorted view.
func listEmbeddedPOIs(ch *character.Character, limit int, cursor string) ([]character.PointOfInterest, string, int, error) {
	pois := make([]character.PointOfInterest, len(ch.WorldPOIs))
	copy(pois, ch.WorldPOIs)
	sortPOIsNewestFirst(pois)

	start := 0
	if cursor != "" {
		decoded, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", 0, err
		}
		idx, ok := strings.CutPrefix(decoded, embeddedCursorPrefix)
		if !ok {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
		start, err = strconv.Atoi(idx)
		if err != nil || start < 0 || start > len(pois) {
			return nil, "", 0, apperr.New(apperr.BadRequest,
				"invalid pagination cursor; restart from the first page")
		}
	}

	end := start + limit
	if end > len(pois) {
		end = len(pois)
	}
	page := pois[start:end]

	next := ""
	if end < len(pois) {
		next = EncodeCursor(embeddedCursorPrefix + strconv.Itoa(end))
	}
	return page, next, len(pois), nil
}

func (s *RedisStore) AllPOIs(ctx context.Context, characterID string) ([]character.PointOfInterest, error) {
	raws, err := s.client.HVals(ctx, s.poisKey(characterID)).Result()
	if err != nil {
		return nil, unavailable("poi read", err)
	}

	if len(raws) == 0 {
		ch, err := s.loadCharacter(ctx, s.client, characterID)
		if err != nil {
			return nil, err
		}
		if s.opts.EmbeddedReadFallback && len(ch.WorldPOIs) > 0 {
			pois := make([]character.PointOfInterest, len(ch.WorldPOIs))
			copy(pois, ch.WorldPOIs)
			return pois, nil
		}
		return []character.PointOfInterest{}, nil
	}

	pois := make([]character.PointOfInterest, 0, len(raws))
	for _, raw := range raws {
		var p character.PointOfInterest
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to decode stored poi")
		}
		pois = append(pois, p)
	}
	return pois, nil
}

func (s *RedisStore) UpdatePOI(ctx context.Context, characterID, ownerID, poiID string, mutate func(*character.PointOfInterest) error) (*character.PointOfInterest, error) {
	var result *character.PointOfInterest
	err := s.mutatePOIs(ctx, "poi update", characterID, ownerID, func(pois map[string]character.PointOfInterest) (changed, removed []character.PointOfInterest, err error) {
		p, ok := pois[poiID]
		if !ok {
			return nil, nil, ErrPOINotFound
		}
		if err := mutate(&p); err != nil {
			return nil, nil, err
		}
		p.ID = poiID
		result = &p
		return []character.PointOfInterest{p}, nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedisStore) DeletePOI(ctx context.Context, characterID, ownerID, poiID string) error {
	return s.mutatePOIs(ctx, "poi delete", characterID, ownerID, func(pois map[string]character.PointOfInterest) (changed, removed []character.PointOfInterest, err error) {
		p, ok := pois[poiID]
		if !ok {
			return nil, nil, ErrPOINotFound
		}
		return nil, []character.PointOfInterest{p}, nil
	})
}

// mutatePOIs is the shared transactional body for POI update and delete.
// apply receives the current subcollection (after migration, when one is
// due) and returns entries to write and entries to remove.
func (s *RedisStore) mutatePOIs(ctx context.Context, op, characterID, ownerID string, apply func(map[string]character.PointOfInterest) (changed, removed []character.PointOfInterest, err error)) error {
	charKey := s.characterKey(characterID)
	poisKey := s.poisKey(characterID)

	txf := func(tx *redis.Tx) error {
		ch, err := s.loadCharacter(ctx, tx, characterID)
		if err != nil {
			return err
		}
		if err := authorize(ch, ownerID); err != nil {
			return err
		}

		stored, err := tx.HGetAll(ctx, poisKey).Result()
		if err != nil {
			return unavailable(op, err)
		}

		pois := make(map[string]character.PointOfInterest, len(stored))
		for id, raw := range stored {
			var p character.PointOfInterest
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return apperr.Wrap(apperr.Internal, err, "failed to decode stored poi")
			}
			pois[id] = p
		}

		var migrated []character.PointOfInterest
		if len(pois) == 0 && s.opts.MigrationEnabled && len(ch.WorldPOIs) > 0 {
			migrated = migrationEntries(ch)
			for _, m := range migrated {
				pois[m.ID] = m
			}
		}

		changed, removed, err := apply(pois)
		if err != nil {
			return err
		}
		ch.UpdatedAt = character.Now()

		charData, err := json.Marshal(ch)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to encode character")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range append(migrated, changed...) {
				data, err := json.Marshal(m)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, poisKey, m.ID, data)
				pipe.ZAdd(ctx, s.poisIndexKey(characterID), redis.Z{
					Score:  timestampScore(m.CreatedAt),
					Member: m.ID,
				})
			}
			for _, r := range removed {
				pipe.HDel(ctx, poisKey, r.ID)
				pipe.ZRem(ctx, s.poisIndexKey(characterID), r.ID)
			}
			pipe.Set(ctx, charKey, charData, 0)
			pipe.ZAdd(ctx, s.ownerCharactersKey(ownerID), redis.Z{
				Score:  timestampScore(ch.UpdatedAt),
				Member: characterID,
			})
			return nil
		})
		return err
	}

	return s.watch(ctx, op, txf, charKey, poisKey)
}
