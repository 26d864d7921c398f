package session

import "github.com/google/uuid"

// newSessionID returns an opaque, cryptographically random session id.
// UUIDv4 gives 122 bits of entropy in a fixed 36-character form.
func newSessionID() string {
	return uuid.NewString()
}
