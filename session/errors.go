package session

import "errors"

// Common errors for session store construction.
//
// Not-found is not in this list on purpose: an unknown or expired session id
// is a normal outcome, reported as a nil record or a false return, never as
// an error.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)
