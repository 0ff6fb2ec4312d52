package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMarkerStore implements MarkerStore with SETNX and a TTL equal to the
// reminder window, so the marker outlives every sweep that could re-fire it.
type RedisMarkerStore struct {
	client *redis.Client
}

func NewRedisMarkerStore(client *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func (m *RedisMarkerStore) SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reminder marker %s: %w", key, err)
	}
	return ok, nil
}
