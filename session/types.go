package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record represents one authenticated session.
//
// The identity fields (UserID, Username, Roles) are fixed at creation time.
// Metadata is an open key/value bag owned by the caller and replaced wholesale
// by Store.Update. All timestamps are UTC.
type Record struct {
	ID           string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	Username     string         `json:"username"`
	Roles        []string       `json:"roles"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given instant.
// A record is live only while ExpiresAt is strictly in the future.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// clone returns a copy deep enough that callers cannot mutate store-held
// state through the returned record.
func (r *Record) clone() *Record {
	c := *r
	c.Roles = append([]string(nil), r.Roles...)
	c.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// Hash field names used by the redis driver.
const (
	fieldID           = "session_id"
	fieldUserID       = "user_id"
	fieldUsername     = "username"
	fieldRoles        = "roles"
	fieldMetadata     = "metadata"
	fieldCreatedAt    = "created_at"
	fieldLastAccessed = "last_accessed"
	fieldExpiresAt    = "expires_at"
)

// formatTime serializes a timestamp the same way on both backends:
// RFC3339 with nanoseconds, normalized to UTC ("Z" suffix).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// hashFields flattens the record into redis hash fields. Roles and metadata
// are JSON-encoded strings so the hash stays flat.
func (r *Record) hashFields() (map[string]any, error) {
	roles, err := json.Marshal(r.Roles)
	if err != nil {
		return nil, fmt.Errorf("marshal roles: %w", err)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return map[string]any{
		fieldID:           r.ID,
		fieldUserID:       r.UserID,
		fieldUsername:     r.Username,
		fieldRoles:        string(roles),
		fieldMetadata:     string(metadata),
		fieldCreatedAt:    formatTime(r.CreatedAt),
		fieldLastAccessed: formatTime(r.LastAccessed),
		fieldExpiresAt:    formatTime(r.ExpiresAt),
	}, nil
}

// recordFromHash rebuilds a record from redis hash fields.
func recordFromHash(fields map[string]string) (*Record, error) {
	r := &Record{
		ID:       fields[fieldID],
		UserID:   fields[fieldUserID],
		Username: fields[fieldUsername],
	}
	if v := fields[fieldRoles]; v != "" {
		if err := json.Unmarshal([]byte(v), &r.Roles); err != nil {
			return nil, fmt.Errorf("unmarshal roles: %w", err)
		}
	}
	if v := fields[fieldMetadata]; v != "" {
		if err := json.Unmarshal([]byte(v), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}

	var err error
	if r.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if r.LastAccessed, err = parseTime(fields[fieldLastAccessed]); err != nil {
		return nil, err
	}
	if r.ExpiresAt, err = parseTime(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}
	return r, nil
}
