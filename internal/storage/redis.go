package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lazr:"

type RedisStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisStore keeps records for baseTTL plus up to five minutes of jitter so
// sessions created together do not expire together.
func NewRedisStore(client *redis.Client, baseTTL time.Duration) *RedisStore {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisStore{
		client:  client,
		baseTTL: baseTTL,
	}
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
