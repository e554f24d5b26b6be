package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dikeckaan/siteform/internal/model"
)

const redisKeyPrefix = "ratelimit:"

// RedisRateLimitRepository is the Redis implementation of
// RateLimitRepository. Expiry is enforced natively by Redis (SET with EX),
// so the passive-TTL cleanup strategy needs no extra work here.
type RedisRateLimitRepository struct {
	rdb *redis.Client
}

// NewRedisRateLimitRepository creates a repository backed by the given client.
func NewRedisRateLimitRepository(rdb *redis.Client) *RedisRateLimitRepository {
	return &RedisRateLimitRepository{rdb: rdb}
}

var _ RateLimitRepository = (*RedisRateLimitRepository)(nil)

func (r *RedisRateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitRecord, error) {
	val, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec model.RateLimitRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decode record for %s: %w", key, err)
	}
	return &rec, nil
}

func (r *RedisRateLimitRepository) Put(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisRateLimitRepository) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// List pages through the keyspace with SCAN. Redis cursors are numeric
// strings; an empty cursor starts the scan and an empty next ends it.
func (r *RedisRateLimitRepository) List(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	var c uint64
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &c); err != nil {
			return nil, "", fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
	}
	keys, next, err := r.rdb.Scan(ctx, c, redisKeyPrefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("redis scan: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(redisKeyPrefix):])
	}
	if next == 0 {
		return out, "", nil
	}
	return out, fmt.Sprintf("%d", next), nil
}

func (r *RedisRateLimitRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
