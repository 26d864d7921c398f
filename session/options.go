package session

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration shared by both backends plus the
// connection target for the shared one.
type storeConfig struct {
	defaultTTL    time.Duration
	maxSessions   int
	slidingWindow bool
	keyPrefix     string
	logger        zerolog.Logger

	redisClient   *redis.Client
	redisAddr     string
	redisPassword string
	redisDB       int
}

func defaultConfig() *storeConfig {
	return &storeConfig{
		defaultTTL: DefaultTTL,
		keyPrefix:  defaultKeyPrefix,
		logger:     zerolog.Nop(),
	}
}

// WithDefaultTTL sets the TTL applied when Create or Refresh omit one.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.defaultTTL = ttl
	}
}

// WithMaxConcurrentSessions caps how many live sessions one user may hold.
// Zero means unlimited.
//
// The cap is soft: concurrent Create calls for the same user may each run a
// redundant eviction pass, and the cap can transiently be exceeded by up to
// one session per extra concurrent creator before converging. This favors
// availability over a global lock across the cache.
func WithMaxConcurrentSessions(n int) StoreOption {
	return func(c *storeConfig) {
		c.maxSessions = n
	}
}

// WithSlidingWindow makes every successful Get extend the session's expiry
// by the default TTL. When disabled, expiry is fixed at Create/Refresh time.
func WithSlidingWindow(enabled bool) StoreOption {
	return func(c *storeConfig) {
		c.slidingWindow = enabled
	}
}

// WithKeyPrefix sets the redis key namespace for the shared store.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// WithLogger sets the logger used for eviction passes and best-effort
// cleanup failures. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// WithRedisClient injects an existing redis client for the shared store.
// Takes precedence over WithRedisAddr.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisAddr sets the connection target for the shared store.
func WithRedisAddr(addr, password string, db int) StoreOption {
	return func(c *storeConfig) {
		c.redisAddr = addr
		c.redisPassword = password
		c.redisDB = db
	}
}
