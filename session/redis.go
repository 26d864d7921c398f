package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on an external redis cache, so multiple
// processes observe the same sessions.
//
// Layout: one hash per session at <prefix>session:<id> with flat string
// fields, and one list per user at <prefix>user:<user_id> holding session
// ids in insertion order. The hash additionally carries a native EXPIREAT
// at the session's expiry, but that is a cleanup backstop: the logical
// expiry check against the expires_at field remains authoritative.
//
// The per-user list is eventually consistent. An id whose hash has already
// expired may linger in the list; readers treat it as absent and prune it,
// never as an error.
type RedisStore struct {
	client *redis.Client
	config *storeConfig
}

// NewRedisStore creates a shared session store from an existing client.
func NewRedisStore(client *redis.Client, opts ...StoreOption) *RedisStore {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return newRedisStore(client, config)
}

func newRedisStore(client *redis.Client, config *storeConfig) *RedisStore {
	return &RedisStore{
		client: client,
		config: config,
	}
}

func (s *RedisStore) key(id string) string {
	return s.config.keyPrefix + "session:" + id
}

func (s *RedisStore) userKey(userID string) string {
	return s.config.keyPrefix + "user:" + userID
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, userID, username string, roles []string, metadata map[string]any, ttl time.Duration) (*Record, error) {
	if ttl <= 0 {
		ttl = s.config.defaultTTL
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:           newSessionID(),
		UserID:       userID,
		Username:     username,
		Roles:        append([]string(nil), roles...),
		Metadata:     metadata,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(ttl),
	}

	fields, err := rec.hashFields()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key(rec.ID), fields)
	pipe.ExpireAt(ctx, s.key(rec.ID), rec.ExpiresAt)
	pipe.RPush(ctx, s.userKey(userID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	if err := s.enforceCap(ctx, userID, rec.ID, now); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	now := time.Now().UTC()
	rec, err := s.load(ctx, id, now)
	if rec == nil || err != nil {
		return nil, err
	}

	rec.LastAccessed = now
	update := map[string]any{fieldLastAccessed: formatTime(now)}
	if s.config.slidingWindow {
		rec.ExpiresAt = now.Add(s.config.defaultTTL)
		update[fieldExpiresAt] = formatTime(rec.ExpiresAt)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key(id), update)
	if s.config.slidingWindow {
		pipe.ExpireAt(ctx, s.key(id), rec.ExpiresAt)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, id string, metadata map[string]any) (bool, error) {
	rec, err := s.load(ctx, id, time.Now().UTC())
	if rec == nil || err != nil {
		return false, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(id), fieldMetadata, string(encoded)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Refresh implements Store.
func (s *RedisStore) Refresh(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.config.defaultTTL
	}

	now := time.Now().UTC()
	rec, err := s.load(ctx, id, now)
	if rec == nil || err != nil {
		return false, err
	}

	expiresAt := now.Add(ttl)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key(id), fieldExpiresAt, formatTime(expiresAt))
	pipe.ExpireAt(ctx, s.key(id), expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}

	rec, err := recordFromHash(fields)
	if err != nil {
		return false, err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.LRem(ctx, s.userKey(rec.UserID), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	// Deleting an already-expired record reports not-found, matching Get.
	return !rec.Expired(time.Now().UTC()), nil
}

// ListUserSessions implements Store. Stale index entries (expired hash,
// lingering list element) are pruned as a side effect.
func (s *RedisStore) ListUserSessions(ctx context.Context, userID string) ([]*Record, error) {
	live, err := s.liveUserSessions(ctx, userID, time.Now().UTC())
	return live, err
}

// DeleteUserSessions implements Store.
func (s *RedisStore) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	live, err := s.liveUserSessions(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	pipe := s.client.Pipeline()
	for _, rec := range live {
		pipe.Del(ctx, s.key(rec.ID))
	}
	pipe.Del(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(live), nil
}

// InactiveSessions implements Store. Enumerates the session namespace with
// SCAN; administrative path, not meant for the request hot path.
func (s *RedisStore) InactiveSessions(ctx context.Context, since time.Time) ([]*Record, error) {
	now := time.Now().UTC()
	var out []*Record

	iter := s.client.Scan(ctx, 0, s.config.keyPrefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Expired between SCAN and read.
			continue
		}
		rec, err := recordFromHash(fields)
		if err != nil {
			s.config.logger.Debug().Err(err).Str("key", iter.Val()).Msg("skipping unreadable session hash")
			continue
		}
		if rec.Expired(now) {
			s.cleanup(ctx, rec)
			continue
		}
		if rec.LastAccessed.Before(since) {
			out = append(out, rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// load fetches a session hash and applies the logical expiry check.
// Expired or missing sessions come back as nil with best-effort cleanup.
func (s *RedisStore) load(ctx context.Context, id string, now time.Time) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec, err := recordFromHash(fields)
	if err != nil {
		return nil, err
	}
	if rec.Expired(now) {
		s.cleanup(ctx, rec)
		return nil, nil
	}
	return rec, nil
}

// liveUserSessions resolves the user's index list against the hash store,
// pruning ids whose hash is gone or expired. Order follows the list, which
// is insertion order.
func (s *RedisStore) liveUserSessions(ctx context.Context, userID string, now time.Time) ([]*Record, error) {
	ids, err := s.client.LRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	live := make([]*Record, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Hash expired natively; drop the stale index entry.
			s.pruneIndex(ctx, userID, id)
			continue
		}
		rec, err := recordFromHash(fields)
		if err != nil {
			s.config.logger.Debug().Err(err).Str("session_id", id).Msg("skipping unreadable session hash")
			continue
		}
		if rec.Expired(now) {
			s.cleanup(ctx, rec)
			continue
		}
		live = append(live, rec)
	}
	return live, nil
}

// enforceCap evicts the user's oldest live sessions beyond the cap. The
// just-created session is exempt from its own eviction pass. The cap is
// soft: concurrent creators may each run this redundantly and transiently
// overshoot before converging.
func (s *RedisStore) enforceCap(ctx context.Context, userID, newID string, now time.Time) error {
	if s.config.maxSessions <= 0 {
		return nil
	}

	live, err := s.liveUserSessions(ctx, userID, now)
	if err != nil {
		return err
	}
	excess := len(live) - s.config.maxSessions
	if excess <= 0 {
		return nil
	}

	candidates := make([]*Record, 0, len(live))
	for _, rec := range live {
		if rec.ID != newID {
			candidates = append(candidates, rec)
		}
	}
	// Oldest first; the stable sort keeps list (insertion) order for
	// records created in the same instant.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if excess > len(candidates) {
		excess = len(candidates)
	}

	pipe := s.client.Pipeline()
	for _, rec := range candidates[:excess] {
		pipe.Del(ctx, s.key(rec.ID))
		pipe.LRem(ctx, s.userKey(userID), 0, rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.config.logger.Debug().
		Str("user_id", userID).
		Int("evicted", excess).
		Msg("session cap enforced")
	return nil
}

// cleanup removes an expired session's hash and index entry. Best effort:
// failures are logged and swallowed so that a logical not-found never turns
// into an error.
func (s *RedisStore) cleanup(ctx context.Context, rec *Record) {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(rec.ID))
	pipe.LRem(ctx, s.userKey(rec.UserID), 0, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.config.logger.Debug().Err(err).Str("session_id", rec.ID).Msg("expired session cleanup failed")
	}
}

// pruneIndex drops a stale id from a user's index list. Best effort.
func (s *RedisStore) pruneIndex(ctx context.Context, userID, id string) {
	if err := s.client.LRem(ctx, s.userKey(userID), 0, id).Err(); err != nil {
		s.config.logger.Debug().Err(err).Str("session_id", id).Msg("stale index entry prune failed")
	}
}
