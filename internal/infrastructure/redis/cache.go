package redisinfra

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/portfolio-api/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the cache backend could not be reached.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is the ephemeral key/value store backing revocation markers,
// pending two-factor secrets, verified-session flags and the user
// read-through cache.
//
// Reads fail open: when the backend is down, Get reports "absent"
// without an error so performance-only lookups degrade to a miss.
// Callers with a security interest in outages (the revocation ledger)
// must inspect GetStrict or Connected instead.
type Cache struct {
	client    redis.UniversalClient
	connected atomic.Bool
	logger    *slog.Logger
}

// New connects to redis and returns the cache. A failed initial ping is
// not fatal: the cache starts disconnected and recovers on the first
// successful operation.
func New(cfg *config.Config, logger *slog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	c := &Cache{client: client, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, caching degraded", "err", err)
	} else {
		c.connected.Store(true)
	}
	return c
}

// NewWithClient wraps an existing client. Used by tests (miniredis).
func NewWithClient(client redis.UniversalClient, logger *slog.Logger) *Cache {
	c := &Cache{client: client, logger: logger}
	c.connected.Store(true)
	return c
}

// Connected reports the last observed backend state.
func (c *Cache) Connected() bool {
	return c.connected.Load()
}

// Get returns the value and whether the key exists. Backend failures
// are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.GetStrict(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", "key", key, "err", err)
		return "", false
	}
	return v, ok
}

// GetStrict is Get without the fail-open translation: backend failures
// surface as ErrUnavailable so the caller can make its own policy call.
func (c *Cache) GetStrict(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.connected.Store(true)
			return "", false, nil
		}
		c.connected.Store(false)
		return "", false, errors.Join(ErrUnavailable, err)
	}
	c.connected.Store(true)
	return v, true, nil
}

// Set writes a value with a TTL. Failures are returned so callers that
// treat a lost write as security-relevant can log it; fire-and-forget
// callers may ignore the error.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.connected.Store(false)
		return errors.Join(ErrUnavailable, err)
	}
	c.connected.Store(true)
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.connected.Store(false)
		return errors.Join(ErrUnavailable, err)
	}
	c.connected.Store(true)
	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
