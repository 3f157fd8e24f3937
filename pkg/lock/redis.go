// Package lock provides a Redis-backed run lock so that only one scheduler
// replica executes a given job at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"classguard/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "classguard:job-lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	log    *logger.Logger
}

func NewRedisLocker(client redis.UniversalClient, log *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, prefix: DefaultPrefix, log: log}
}

// Acquire sets key with a random token if it is absent. The returned
// release deletes the key only while it still holds that token, so an
// expired lock taken over by another replica is left alone.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.log.Warn("Failed to release job lock", "key", fullKey, "error", err)
		}
	}
	return release, true, nil
}
