// Package cache provides the process-wide read cache, keyed by strings and
// invalidated by key prefix, and the one-shot markers used to defer work until
// a later event.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytebank-ledger/internal/config"
	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encoded values under string keys
type Cache interface {
	// Get decodes the value under key into dest and reports whether it was found
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate drops every key that starts with prefix
	Invalidate(ctx context.Context, prefix string) error

	// Generation returns the counter stored under key, 0 when it was never advanced.
	// Counters are not cache entries: Invalidate and expiry never reset them.
	Generation(ctx context.Context, key string) (int64, error)
	// Advance atomically increments the counter under key and returns the new value
	Advance(ctx context.Context, key string) (int64, error)
	Close() error
}

// Markers are expiring one-shot flags. Consume reports whether the marker was
// present and removes it atomically, so at most one caller observes it.
type Markers interface {
	Mark(ctx context.Context, key string, ttl time.Duration) error
	Consume(ctx context.Context, key string) (bool, error)
}

// New builds the cache and marker store selected by cfg.Driver. Redis-backed
// instances share one client, which Cache.Close releases.
func New(ctx context.Context, cfg *config.CacheConfig, logger *slog.Logger) (Cache, Markers, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("Redis cache connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return NewRedisCache(client, true, logger), NewRedisMarkers(client), nil
	case "memory", "":
		logger.Info("In-memory cache initialized")
		return NewMemoryCache(time.Minute), NewMemoryMarkers(), nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
