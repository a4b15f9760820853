package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed one-minute-window budget per identifier
// (client IP, or the first trusted forwarded address), shared across every
// instance of this service via the same Redis store backing the queue —
// unlike an in-process token bucket, this converges to one global budget in
// a clustered deployment. Windows are aligned to wall-clock minutes, not
// sliding.
type RateLimiter struct {
	client            *redis.Client
	requestsPerMinute int
	burst             int
}

// incrementScript bumps a per-window counter and sets its expiry on first
// touch, in one atomic step — avoids the race where two handlers both read
// a missing key and both set an independent TTL.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// NewRateLimiter builds a limiter sharing the given client (normally the
// queue's own client, so no second connection pool is opened for this).
func NewRateLimiter(client *redis.Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{client: client, requestsPerMinute: requestsPerMinute, burst: burst}
}

// Allow checks and increments the identifier's counter for the current
// one-minute window. It returns whether the request is admitted and, when
// not, how many seconds until the window resets (for the Retry-After
// hint).
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, error) {
	window := time.Now().UTC().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, window)

	count, err := incrementScript.Run(ctx, r.client, []string{key}, 60).Int()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: increment failed: %w", err)
	}

	limit := r.requestsPerMinute + r.burst
	if count > limit {
		retryAfter := 60 - int(time.Now().UTC().Unix()-window)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// ViolationCount increments and returns identifier's violation counter,
// which expires five minutes after its first increment. It only counts:
// the ingestion rate-limit middleware does not call it, and no identifier
// is blocked beyond the per-window limit that Allow enforces.
func (r *RateLimiter) ViolationCount(ctx context.Context, identifier string) (int64, error) {
	key := fmt.Sprintf("ratelimit:violations:%s", identifier)
	count, err := incrementScript.Run(ctx, r.client, []string{key}, 300).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: violation tracking failed: %w", err)
	}
	return count, nil
}
