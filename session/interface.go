package session

import (
	"context"
	"time"
)

// Store defines the interface for session lifecycle operations.
//
// Both backends implement identical semantics: an unknown or expired session
// id yields a nil record (Get) or a false return (Update, Refresh, Delete),
// never an error. Errors are reserved for backend failures, which propagate
// to the caller unchanged — the store performs no retries and never falls
// back to a different backend.
//
// Writes are last-write-wins. Update and Refresh overwrite their respective
// fields unconditionally; no versioning is provided.
type Store interface {
	// Create mints a new session for the given principal. A zero ttl uses
	// the store's configured default. The returned record carries the
	// generated session id. After inserting, Create enforces the
	// concurrent-session cap for the user by evicting the oldest live
	// sessions beyond the cap.
	Create(ctx context.Context, userID, username string, roles []string, metadata map[string]any, ttl time.Duration) (*Record, error)

	// Get retrieves a live session by id. Returns nil if the session is
	// unknown or expired (expired entries are cleaned up as a side effect).
	// In sliding-window mode a successful Get extends the expiry by the
	// default TTL and updates LastAccessed.
	Get(ctx context.Context, id string) (*Record, error)

	// Update replaces the session's metadata wholesale. LastAccessed and
	// ExpiresAt are untouched. Returns false for unknown or expired ids.
	Update(ctx context.Context, id string, metadata map[string]any) (bool, error)

	// Refresh extends the session's expiry to now+ttl (default TTL when
	// ttl is zero). Returns false for unknown or expired ids.
	Refresh(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Delete removes the session. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// ListUserSessions returns the user's live sessions in insertion
	// order. Expired entries are filtered out and opportunistically
	// removed.
	ListUserSessions(ctx context.Context, userID string) ([]*Record, error)

	// DeleteUserSessions removes all of the user's live sessions and
	// returns how many were removed.
	DeleteUserSessions(ctx context.Context, userID string) (int, error)

	// InactiveSessions returns live sessions whose LastAccessed is before
	// the given instant. Administrative path, not optimized for the hot
	// path.
	InactiveSessions(ctx context.Context, since time.Time) ([]*Record, error)

	// Close releases backend resources.
	Close() error
}
