package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to a local Redis instance for integration-style
// tests of the Lua-scripted admission path. There is no embedded-Redis
// dependency anywhere in the retrieval pack, so these tests run against a
// real redis.Client and skip when one isn't reachable, rather than faking
// the server-side atomicity the test exists to exercise.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not reachable at localhost:6379, skipping integration test")
	}
	return client
}

func TestPushBatch_RejectsWhenOverCapacity(t *testing.T) {
	client := newTestClient(t)
	key := "test:queue:capacity"
	client.Del(context.Background(), key)
	defer client.Del(context.Background(), key)

	q := NewWithClient(client, key, 5)
	ctx := context.Background()

	require.NoError(t, q.PushBatch(ctx, []interface{}{"a", "b", "c", "d", "e"}))

	err := q.PushBatch(ctx, []interface{}{"f"})
	require.ErrorIs(t, err, ErrQueueFull)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, depth)
}

func TestPushBatch_ConcurrentPushesNeverExceedCapacity(t *testing.T) {
	client := newTestClient(t)
	key := "test:queue:concurrent"
	client.Del(context.Background(), key)
	defer client.Del(context.Background(), key)

	q := NewWithClient(client, key, 10)
	ctx := context.Background()

	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			results <- q.PushBatch(ctx, []interface{}{"x", "y", "z"})
		}()
	}

	accepted := 0
	for i := 0; i < 4; i++ {
		if err := <-results; err == nil {
			accepted++
		}
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, depth, int64(10))
	require.LessOrEqual(t, accepted*3, 10)
}

func TestPopBatch_ReturnsFewerWhenQueueShorterThanRequested(t *testing.T) {
	client := newTestClient(t)
	key := "test:queue:pop"
	client.Del(context.Background(), key)
	defer client.Del(context.Background(), key)

	q := NewWithClient(client, key, 100)
	ctx := context.Background()
	require.NoError(t, q.PushBatch(ctx, []interface{}{"only-one"}))

	entries, err := q.PopBatch(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = q.PopBatch(ctx, 50)
	require.NoError(t, err)
	require.Empty(t, entries)
}
