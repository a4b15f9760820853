// Package queue implements the durable, bounded event queue backed by
// Redis, and the cluster-shared rate limiter built on the same client.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config mirrors the connection tuning the store's cache client uses,
// parameterized by the process config instead of hardcoded.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Key      string
	MaxSize  int
}

// Queue is a single FIFO of opaque JSON-serialized events, bounded to
// MaxSize and admitted via a single atomic Lua step so that concurrent
// ingestion handlers can never collectively push the list over capacity.
type Queue struct {
	client  *redis.Client
	key     string
	maxSize int
}

// pushBatchScript checks currentDepth+len(entries) against the capacity
// limit and performs the RPUSH in the same server-side step. Returning 0
// means the whole batch was rejected; the caller never observes a partial
// push.
var pushBatchScript = redis.NewScript(`
local depth = redis.call('LLEN', KEYS[1])
local n = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if depth + n > limit then
	return 0
end
for i = 3, #ARGV do
	redis.call('RPUSH', KEYS[1], ARGV[i])
end
return 1
`)

// New opens a Redis client tuned the way the rest of this service's cache
// client is tuned, and verifies connectivity.
func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: failed to ping redis: %w", err)
	}

	return &Queue{client: client, key: cfg.Key, maxSize: cfg.MaxSize}, nil
}

// NewWithClient builds a Queue around an already-constructed client —
// intended for tests driving a real or fake redis.Client instance.
func NewWithClient(client *redis.Client, key string, maxSize int) *Queue {
	return &Queue{client: client, key: key, maxSize: maxSize}
}

// Close closes the underlying Redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// ErrQueueFull is returned when admitting entries would exceed maxSize.
var ErrQueueFull = fmt.Errorf("queue: at capacity")

// PushBatch serializes and admits entries as a single atomic step: either
// all of them are appended, or none are, and the caller gets ErrQueueFull.
func (q *Queue) PushBatch(ctx context.Context, entries []interface{}) error {
	if len(entries) == 0 {
		return nil
	}

	serialized := make([]interface{}, 0, len(entries)+2)
	serialized = append(serialized, len(entries), q.maxSize)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("queue: failed to marshal entry: %w", err)
		}
		serialized = append(serialized, string(data))
	}

	admitted, err := pushBatchScript.Run(ctx, q.client, []string{q.key}, serialized...).Int()
	if err != nil {
		return fmt.Errorf("queue: push failed: %w", err)
	}
	if admitted == 0 {
		return ErrQueueFull
	}
	return nil
}

// PopBatch removes up to n entries from the head, returning fewer than n
// (possibly zero) without error when fewer exist. Malformed entries are
// dropped by the caller, which logs a warning — the queue itself doesn't
// parse payload shape, it only deals in raw bytes.
func (q *Queue) PopBatch(ctx context.Context, n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := q.client.LPopCount(ctx, q.key, n).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop failed: %w", err)
	}
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}

// Depth returns the current queue length.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth check failed: %w", err)
	}
	return depth, nil
}

// Clear empties the queue. Test/maintenance only — never exposed over HTTP.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.key).Err(); err != nil {
		return fmt.Errorf("queue: clear failed: %w", err)
	}
	return nil
}

// Client exposes the underlying redis.Client for components (rate limiter,
// stats cache) that share the same backing store without paying for a
// second connection pool.
func (q *Queue) Client() *redis.Client {
	return q.client
}
