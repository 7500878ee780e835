package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisIdempotencyStore claims keys with SETNX so that several API
// instances share one view of in-flight checkouts.
type RedisIdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisIdempotencyStore creates a new RedisIdempotencyStore.
func NewRedisIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (string, error) {
	k := orderCreateKey(key)
	claimed, err := s.rdb.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to claim %s: %w", k, err)
	}
	if claimed {
		return "", nil
	}

	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return "", ErrInFlight
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", k, err)
	}
	if val == pendingMarker {
		return "", ErrInFlight
	}
	return val, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	k := orderCreateKey(key)
	if err := s.rdb.Set(ctx, k, orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", k, err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Abort(ctx context.Context, key string) error {
	k := orderCreateKey(key)
	if err := s.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", k, err)
	}
	return nil
}
