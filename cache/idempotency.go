package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "notify:sent:"

// IdempotencyStore records which notification jobs have been taken for
// delivery, so an at-least-once queue never produces a second send.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// SetIfAbsent claims a key, returning false when it was already claimed.
func (s *IdempotencyStore) SetIfAbsent(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, s.ttl).Result()
}

// Release frees a claimed key so a failed job can be retried manually after
// dead-lettering.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
