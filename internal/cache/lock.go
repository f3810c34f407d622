package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-practice/internal/config"
)

// ActiveAttemptLock guarantees one live session per owner and course.
type ActiveAttemptLock interface {
	// Acquire claims the lock for sessionID. It returns false when another
	// session already holds it.
	Acquire(ctx context.Context, owner, courseSlug, sessionID string, ttl time.Duration) (bool, error)
	// Holder returns the session id holding the lock, or "" when free.
	Holder(ctx context.Context, owner, courseSlug string) (string, error)
	// Extend resets the TTL if sessionID still holds the lock.
	Extend(ctx context.Context, owner, courseSlug, sessionID string, ttl time.Duration) error
	// Release frees the lock if sessionID still holds it.
	Release(ctx context.Context, owner, courseSlug, sessionID string) error
}

type activeAttemptLock struct {
	client *redis.Client
}

func NewActiveAttemptLock(client *redis.Client) ActiveAttemptLock {
	return &activeAttemptLock{client: client}
}

// releaseScript deletes the key only when it still carries our session id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (l *activeAttemptLock) Acquire(ctx context.Context, owner, courseSlug, sessionID string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, config.CacheKey.ActiveAttemptKey(owner, courseSlug), sessionID, ttl).Result()
}

func (l *activeAttemptLock) Holder(ctx context.Context, owner, courseSlug string) (string, error) {
	id, err := l.client.Get(ctx, config.CacheKey.ActiveAttemptKey(owner, courseSlug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (l *activeAttemptLock) Extend(ctx context.Context, owner, courseSlug, sessionID string, ttl time.Duration) error {
	key := config.CacheKey.ActiveAttemptKey(owner, courseSlug)
	return extendScript.Run(ctx, l.client, []string{key}, sessionID, ttl.Milliseconds()).Err()
}

func (l *activeAttemptLock) Release(ctx context.Context, owner, courseSlug, sessionID string) error {
	key := config.CacheKey.ActiveAttemptKey(owner, courseSlug)
	return releaseScript.Run(ctx, l.client, []string{key}, sessionID).Err()
}
