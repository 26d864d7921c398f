package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreType selects the backing implementation.
type StoreType string

const (
	// StoreTypeLocal keeps all state in process memory.
	StoreTypeLocal StoreType = "local"
	// StoreTypeShared keeps state in an external redis cache so that
	// multiple processes observe the same sessions.
	StoreTypeShared StoreType = "shared"
)

// DefaultTTL is used when no default TTL is configured.
const DefaultTTL = 24 * time.Hour

const defaultKeyPrefix = "sessions:"

// ParseStoreType maps a configuration string to a StoreType,
// case-insensitively. Unknown names return ErrInvalidStoreType.
func ParseStoreType(s string) (StoreType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StoreTypeLocal):
		return StoreTypeLocal, nil
	case string(StoreTypeShared):
		return StoreTypeShared, nil
	default:
		return "", fmt.Errorf("%w: %q (want \"local\" or \"shared\")", ErrInvalidStoreType, s)
	}
}

// NewStore creates a new Store for the given backend type.
//
// Configuration problems (unknown backend, non-positive TTL, negative
// session cap, shared backend without a connection target) are reported
// here, at construction time. Connectivity problems with the shared
// backend surface on the first operation; the store never falls back to
// the local backend on its own.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.defaultTTL <= 0 {
		return nil, fmt.Errorf("%w: default TTL must be positive, got %s", ErrInvalidConfig, config.defaultTTL)
	}
	if config.maxSessions < 0 {
		return nil, fmt.Errorf("%w: max concurrent sessions must be >= 0, got %d", ErrInvalidConfig, config.maxSessions)
	}

	switch storeType {
	case StoreTypeLocal:
		return newMemoryStore(config), nil

	case StoreTypeShared:
		client := config.redisClient
		if client == nil {
			if config.redisAddr == "" {
				return nil, fmt.Errorf("%w: shared backend requires a redis address or client", ErrInvalidConfig)
			}
			client = redis.NewClient(&redis.Options{
				Addr:     config.redisAddr,
				Password: config.redisPassword,
				DB:       config.redisDB,
			})
		}
		return newRedisStore(client, config), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}
