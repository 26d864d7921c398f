package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/creastat/sessions/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory builds a fresh store for one subtest. Both backends are run
// through the same contract so identical operation sequences produce
// identical observable results.
type storeFactory func(t *testing.T, opts ...session.StoreOption) session.Store

// runStoreContract verifies that a Store implementation adheres to the
// lifecycle contract.
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		meta := map[string]any{"client_ip": "10.0.0.7", "device": "cli"}
		rec, err := store.Create(ctx, "user-1", "alice", []string{"admin", "viewer"}, meta, 0)
		require.NoError(t, err)
		require.NotEmpty(t, rec.ID)
		assert.Equal(t, "user-1", rec.UserID)
		assert.False(t, rec.ExpiresAt.Before(rec.CreatedAt))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, []string{"admin", "viewer"}, got.Roles)
		assert.Equal(t, "10.0.0.7", got.Metadata["client_ip"])
		assert.Equal(t, "cli", got.Metadata["device"])
		assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
	})

	t.Run("CreateWithoutMetadata", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotNil(t, got.Metadata)
		assert.Empty(t, got.Metadata)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		got, err := store.Get(ctx, "no-such-session")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("FixedTTLExpiry", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 100*time.Millisecond)
		require.NoError(t, err)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got, "session should be live before its TTL elapses")

		time.Sleep(150 * time.Millisecond)

		got, err = store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got, "session should be absent after its TTL elapses")
	})

	t.Run("FixedWindowNotExtendedByReads", func(t *testing.T) {
		store := newStore(t, session.WithDefaultTTL(200*time.Millisecond))
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		// Reads must not move the expiry.
		time.Sleep(100 * time.Millisecond)
		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		time.Sleep(150 * time.Millisecond)
		got, err = store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got, "read must not extend a fixed-window session")
	})

	t.Run("SlidingWindowExtendedByReads", func(t *testing.T) {
		store := newStore(t,
			session.WithDefaultTTL(200*time.Millisecond),
			session.WithSlidingWindow(true),
		)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		// Reading every T/2 keeps the session alive well past T.
		for i := 0; i < 5; i++ {
			time.Sleep(100 * time.Millisecond)
			got, err := store.Get(ctx, rec.ID)
			require.NoError(t, err)
			require.NotNil(t, got, "periodic reads should keep a sliding session alive")
		}

		// Once the reads stop, it dies T after the last one.
		time.Sleep(250 * time.Millisecond)
		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got, "sliding session should expire after reads stop")
	})

	t.Run("UpdateReplacesOnlyMetadata", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", []string{"admin"},
			map[string]any{"device": "cli", "stale": "yes"}, 0)
		require.NoError(t, err)

		ok, err := store.Update(ctx, rec.ID, map[string]any{"device": "browser"})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, map[string]any{"device": "browser"}, got.Metadata, "metadata is replaced wholesale")
		assert.Equal(t, []string{"admin"}, got.Roles)
		assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
		assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt), "update must not touch expiry")
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		ok, err := store.Update(ctx, "no-such-session", map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RefreshExtendsExpiry", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 100*time.Millisecond)
		require.NoError(t, err)

		ok, err := store.Refresh(ctx, rec.ID, 10*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(150 * time.Millisecond)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.NotNil(t, got, "refreshed session should outlive its original TTL")
	})

	t.Run("RefreshUnknown", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		ok, err := store.Refresh(ctx, "no-such-session", 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		ok, err := store.Delete(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		ok, err = store.Delete(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, ok, "second delete reports not-found")
	})

	t.Run("ListUserSessions", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		first, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)
		second, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)
		_, err = store.Create(ctx, "user-2", "bob", nil, nil, 0)
		require.NoError(t, err)
		expired, err := store.Create(ctx, "user-1", "alice", nil, nil, 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		recs, err := store.ListUserSessions(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, recs, 2, "expired sessions are filtered out")
		assert.Equal(t, first.ID, recs[0].ID, "insertion order")
		assert.Equal(t, second.ID, recs[1].ID)
		for _, rec := range recs {
			assert.NotEqual(t, expired.ID, rec.ID)
		}
	})

	t.Run("ListUserSessionsEmpty", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		recs, err := store.ListUserSessions(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("DeleteUserSessions", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		for i := 0; i < 3; i++ {
			_, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
			require.NoError(t, err)
		}
		other, err := store.Create(ctx, "user-2", "bob", nil, nil, 0)
		require.NoError(t, err)

		count, err := store.DeleteUserSessions(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		recs, err := store.ListUserSessions(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, recs)

		got, err := store.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.NotNil(t, got, "other users are unaffected")
	})

	t.Run("ConcurrencyCapEvictsOldest", func(t *testing.T) {
		store := newStore(t, session.WithMaxConcurrentSessions(3))
		defer store.Close()

		var ids []string
		for i := 0; i < 3; i++ {
			rec, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
			require.NoError(t, err)
			ids = append(ids, rec.ID)
			time.Sleep(5 * time.Millisecond) // distinct created_at ordering
		}

		fourth, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		got, err := store.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Nil(t, got, "oldest session is evicted")

		for _, id := range append(ids[1:], fourth.ID) {
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.NotNil(t, got, "surviving sessions remain readable")
		}

		recs, err := store.ListUserSessions(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("CapDoesNotEvictNewSession", func(t *testing.T) {
		store := newStore(t, session.WithMaxConcurrentSessions(1))
		defer store.Close()

		old, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		fresh, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)

		got, err := store.Get(ctx, old.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = store.Get(ctx, fresh.ID)
		require.NoError(t, err)
		assert.NotNil(t, got, "a brand-new session cannot evict itself")
	})

	t.Run("InactiveSessions", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		idle, err := store.Create(ctx, "user-1", "alice", nil, nil, 0)
		require.NoError(t, err)
		active, err := store.Create(ctx, "user-2", "bob", nil, nil, 0)
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		cutoff := time.Now()

		// Bump the active session's last_accessed past the cutoff.
		_, err = store.Get(ctx, active.ID)
		require.NoError(t, err)

		recs, err := store.InactiveSessions(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, idle.ID, recs[0].ID)
	})
}
