package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyPending is stored under a key while its submission is in flight.
const IdempotencyPending = "pending"

const idempotencyKeyPrefix = "bulkmail:idem:"

// RedisIdempotencyRepo maps client idempotency keys to job ids in Redis.
type RedisIdempotencyRepo struct {
	client redis.UniversalClient
}

// NewRedisIdempotencyRepo creates a new RedisIdempotencyRepo with the given Redis client.
func NewRedisIdempotencyRepo(client redis.UniversalClient) *RedisIdempotencyRepo {
	return &RedisIdempotencyRepo{client: client}
}

// Reserve claims key with SET NX. When the key already exists it returns the
// stored value (a job id, or IdempotencyPending) and false.
func (r *RedisIdempotencyRepo) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	// SETNX followed by EXPIRE is not atomic; SET with NX and a TTL is.
	status, err := r.client.SetArgs(ctx, idempotencyKeyPrefix+key, IdempotencyPending, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	switch {
	case err == nil && status == "OK":
		return "", true, nil
	case err != nil && !errors.Is(err, redis.Nil):
		return "", false, fmt.Errorf("redis SET NX: %w", err)
	}

	existing, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SET and GET; the caller retries as a conflict.
		return IdempotencyPending, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return existing, false, nil
}

// Bind replaces the pending marker with the created job id.
func (r *RedisIdempotencyRepo) Bind(ctx context.Context, key, jobID string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := r.client.Set(ctx, idempotencyKeyPrefix+key, jobID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release drops a reservation whose submission failed.
func (r *RedisIdempotencyRepo) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (r *RedisIdempotencyRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
