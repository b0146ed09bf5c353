package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanBatchSize = 100

// RedisCache is a Cache shared by every gateway replica
type RedisCache struct {
	client     *redis.Client
	ownsClient bool
	logger     *slog.Logger
}

// NewRedisCache wraps client. When ownsClient is true, Close closes the client.
func NewRedisCache(client *redis.Client, ownsClient bool, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client:     client,
		ownsClient: ownsClient,
		logger:     logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		_ = c.client.Del(ctx, key)
		return false, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}
	return nil
}

// Invalidate walks the keyspace with SCAN and deletes matches batch by batch
func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	deleted := 0

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys for %s: %w", prefix, err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys for %s: %w", prefix, err)
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Cache prefix invalidated", "prefix", prefix, "deleted", deleted)
	return nil
}

func (c *RedisCache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read generation %s: %w", key, err)
	}
	return gen, nil
}

// Advance uses INCR, so concurrent writers on every replica observe distinct values
func (c *RedisCache) Advance(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance generation %s: %w", key, err)
	}
	return gen, nil
}

func (c *RedisCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// RedisMarkers stores markers as expiring keys consumed with GETDEL
type RedisMarkers struct {
	client *redis.Client
}

func NewRedisMarkers(client *redis.Client) *RedisMarkers {
	return &RedisMarkers{client: client}
}

func (m *RedisMarkers) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := m.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set marker %s: %w", key, err)
	}
	return nil
}

func (m *RedisMarkers) Consume(ctx context.Context, key string) (bool, error) {
	_, err := m.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume marker %s: %w", key, err)
	}
	return true, nil
}
