package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/platform/cache"
)

// readThrough serves key from c when present, otherwise loads, stores and returns
// the fresh value. Cache failures degrade to a direct load.
//
// Stored keys carry the user's cache generation as read before the load. A write
// that commits while the load is in flight advances the generation, so the value
// this load stores lands under a retired key that no later read asks for.
func readThrough[T any](ctx context.Context, c cache.Cache, logger *slog.Logger, userID uuid.UUID, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}

	gen, err := c.Generation(ctx, GenerationKey(userID))
	if err != nil {
		logger.Warn("Cache generation read failed", "user_id", userID.String(), "error", err)
		return load()
	}
	key = versionedKey(key, gen)

	var cached T
	found, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("Cache read failed", "key", key, "error", err)
	} else if found {
		return cached, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return value, nil
}

// Invalidate retires every cached read of userID by advancing the user's
// generation, then drops the entries under prefixes to free them early.
func Invalidate(ctx context.Context, c cache.Cache, userID uuid.UUID, prefixes ...string) error {
	if c == nil {
		return nil
	}

	var errs []error
	if _, err := c.Advance(ctx, GenerationKey(userID)); err != nil {
		errs = append(errs, err)
	}
	for _, prefix := range prefixes {
		if err := c.Invalidate(ctx, prefix); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", prefix, err))
		}
	}
	return errors.Join(errs...)
}

// invalidate is Invalidate for write paths, where a cache failure is logged and
// stale reads expire with the TTL
func invalidate(ctx context.Context, c cache.Cache, logger *slog.Logger, userID uuid.UUID, prefixes ...string) {
	if err := Invalidate(ctx, c, userID, prefixes...); err != nil {
		logger.Warn("Cache invalidation failed", "user_id", userID.String(), "error", err)
	}
}

func versionedKey(key string, gen int64) string {
	return key + "#" + strconv.FormatInt(gen, 10)
}
