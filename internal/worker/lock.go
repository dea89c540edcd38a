package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLock is a Locker backed by SET NX with a TTL. Keys are never
// released; they expire once the purchase height is stale.
type RedisLock struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisLock(client *redis.Client, prefix string, log *zap.Logger) *RedisLock {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLock{client: client, prefix: prefix, log: log}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	full := l.prefix + key
	acquired, err := l.client.SetNX(ctx, full, "locked", ttl).Result()
	if err != nil {
		l.log.Error("failed to acquire purchase lock", zap.Error(err), zap.String("key", full))
		return false, err
	}
	return acquired, nil
}
