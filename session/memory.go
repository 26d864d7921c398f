package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using in-process maps. State does not
// survive the process and is not shared with other instances.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	// byUser holds each user's session ids in insertion order. It backs
	// ListUserSessions, DeleteUserSessions and cap eviction without a
	// full scan.
	byUser map[string][]string
	config *storeConfig
}

// NewMemoryStore creates a local, in-process session store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return newMemoryStore(config)
}

func newMemoryStore(config *storeConfig) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Record),
		byUser:   make(map[string][]string),
		config:   config,
	}
}

// Create implements Store. Insertion and cap eviction happen under one
// lock, so two concurrent creates for the same user cannot both skip the
// eviction pass.
func (s *MemoryStore) Create(ctx context.Context, userID, username string, roles []string, metadata map[string]any, ttl time.Duration) (*Record, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[rec.ID] = rec
	s.byUser[userID] = append(s.byUser[userID], rec.ID)
	s.enforceCapLocked(userID, rec.ID, now)

	return rec.clone(), nil
}

// Get implements Store. Takes the write lock because a read may expire the
// record, and always touches LastAccessed.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := s.liveLocked(id, now)
	if rec == nil {
		return nil, nil
	}

	rec.LastAccessed = now
	if s.config.slidingWindow {
		rec.ExpiresAt = now.Add(s.config.defaultTTL)
	}
	return rec.clone(), nil
}

// Update implements Store. Replaces metadata wholesale; expiry and
// LastAccessed are untouched.
func (s *MemoryStore) Update(ctx context.Context, id string, metadata map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.liveLocked(id, time.Now().UTC())
	if rec == nil {
		return false, nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rec.Metadata = metadata
	return true, nil
}

// Refresh implements Store.
func (s *MemoryStore) Refresh(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.config.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := s.liveLocked(id, now)
	if rec == nil {
		return false, nil
	}
	rec.ExpiresAt = now.Add(ttl)
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.sessions[id]
	if !exists {
		return false, nil
	}
	expired := rec.Expired(time.Now().UTC())
	s.removeLocked(rec)
	// Deleting an already-expired record reports not-found, matching Get.
	return !expired, nil
}

// ListUserSessions implements Store. Expired entries are pruned as a side
// effect and never returned.
func (s *MemoryStore) ListUserSessions(ctx context.Context, userID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveUserSessionsLocked(userID, time.Now().UTC())
	out := make([]*Record, 0, len(live))
	for _, rec := range live {
		out = append(out, rec.clone())
	}
	return out, nil
}

// DeleteUserSessions implements Store.
func (s *MemoryStore) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveUserSessionsLocked(userID, time.Now().UTC())
	for _, rec := range live {
		s.removeLocked(rec)
	}
	return len(live), nil
}

// InactiveSessions implements Store.
func (s *MemoryStore) InactiveSessions(ctx context.Context, since time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var out []*Record
	for _, rec := range s.sessions {
		if rec.Expired(now) {
			s.removeLocked(rec)
			continue
		}
		if rec.LastAccessed.Before(since) {
			out = append(out, rec.clone())
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.byUser = nil
	return nil
}

// liveLocked returns the stored record if present and unexpired, removing
// it (lazy expiry) otherwise.
func (s *MemoryStore) liveLocked(id string, now time.Time) *Record {
	rec, exists := s.sessions[id]
	if !exists {
		return nil
	}
	if rec.Expired(now) {
		s.removeLocked(rec)
		return nil
	}
	return rec
}

// liveUserSessionsLocked returns the user's live records in insertion
// order, pruning expired ones from both the map and the index.
func (s *MemoryStore) liveUserSessionsLocked(userID string, now time.Time) []*Record {
	var live []*Record
	for _, id := range append([]string(nil), s.byUser[userID]...) {
		rec, exists := s.sessions[id]
		if !exists {
			continue
		}
		if rec.Expired(now) {
			s.removeLocked(rec)
			continue
		}
		live = append(live, rec)
	}
	return live
}

// removeLocked deletes the record from the primary map and from its
// user's index.
func (s *MemoryStore) removeLocked(rec *Record) {
	delete(s.sessions, rec.ID)

	ids := s.byUser[rec.UserID]
	for i, id := range ids {
		if id == rec.ID {
			s.byUser[rec.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byUser[rec.UserID]) == 0 {
		delete(s.byUser, rec.UserID)
	}
}

// enforceCapLocked evicts the user's oldest live sessions until the count
// is back at the cap. The just-created session never evicts itself.
func (s *MemoryStore) enforceCapLocked(userID, newID string, now time.Time) {
	if s.config.maxSessions <= 0 {
		return
	}

	live := s.liveUserSessionsLocked(userID, now)
	excess := len(live) - s.config.maxSessions
	if excess <= 0 {
		return
	}

	candidates := make([]*Record, 0, len(live))
	for _, rec := range live {
		if rec.ID != newID {
			candidates = append(candidates, rec)
		}
	}
	// Oldest first; the stable sort keeps insertion order for records
	// created in the same instant.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for i := 0; i < excess && i < len(candidates); i++ {
		s.removeLocked(candidates[i])
	}
	s.config.logger.Debug().
		Str("user_id", userID).
		Int("evicted", excess).
		Msg("session cap enforced")
}
