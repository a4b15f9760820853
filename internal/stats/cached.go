package stats

import (
	"context"
	"time"

	"github.com/oceanview/analytics-collector/internal/cache"
	"github.com/oceanview/analytics-collector/internal/logger"
)

// Cached runs producer only on a cache miss, storing its result under key
// for ttl. A disabled or unreachable cache degrades to always calling
// producer — the stats endpoints stay correct, just slower, rather than
// failing when Redis is down.
func Cached[T any](ctx context.Context, c *cache.Cache, key string, ttl time.Duration, producer func() (T, error)) (T, error) {
	var out T
	if c != nil && c.IsEnabled() {
		if err := c.Get(ctx, key, &out); err == nil {
			return out, nil
		}
	}

	out, err := producer()
	if err != nil {
		return out, err
	}

	if c != nil && c.IsEnabled() {
		if err := c.Set(ctx, key, out, ttl); err != nil {
			logger.Stats().Warn().Err(err).Str("key", key).Msg("failed to populate stats cache")
		}
	}
	return out, nil
}
