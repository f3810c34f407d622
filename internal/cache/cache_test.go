package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests talk to a real Redis and are skipped unless TEST_REDIS_URL is set.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestActiveAttemptLock(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	lock := NewActiveAttemptLock(client)
	owner := "owner-" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, config.CacheKey.ActiveAttemptKey(owner, "go-basics")) })

	ok, err := lock.Acquire(ctx, owner, "go-basics", "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, owner, "go-basics", "s2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second session for the same course must be refused")

	holder, err := lock.Holder(ctx, owner, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, "s1", holder)

	require.NoError(t, lock.Extend(ctx, owner, "go-basics", "s1", 2*time.Minute))
	ttl, err := client.PTTL(ctx, config.CacheKey.ActiveAttemptKey(owner, "go-basics")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, lock.Release(ctx, owner, "go-basics", "s2"))
	holder, _ = lock.Holder(ctx, owner, "go-basics")
	assert.Equal(t, "s1", holder, "only the holder may release")

	require.NoError(t, lock.Release(ctx, owner, "go-basics", "s1"))
	holder, err = lock.Holder(ctx, owner, "go-basics")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestEventBus(t *testing.T) {
	client := testClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewEventBus(client)
	id := uuid.NewString()

	sub, err := bus.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, id, map[string]string{"type": "tick"}))

	select {
	case msg := <-sub.C:
		assert.JSONEq(t, `{"type":"tick"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestOutcomeQueue(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := config.WorkerKey.PersistOutcomesQueue
	before, err := client.LLen(ctx, key).Result()
	require.NoError(t, err)

	out := &model.SessionOutcome{SessionID: uuid.NewString(), AttemptID: "1001", Status: model.AttemptStatusCompleted}
	require.NoError(t, NewOutcomeQueue(client).Enqueue(ctx, out))

	raw, err := client.LIndex(ctx, key, before).Result()
	require.NoError(t, err)
	client.LRem(ctx, key, 1, raw)

	var got model.SessionOutcome
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, out.SessionID, got.SessionID)
}
