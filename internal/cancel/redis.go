package cancel

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "teraleech:cancel:"

// RedisStore shares cancel requests between the bot process and workers.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: 6 * time.Hour}
}

func (s *RedisStore) Request(ctx context.Context, jobID string) error {
	return s.rdb.Set(ctx, keyPrefix+jobID, 1, s.ttl).Err()
}

func (s *RedisStore) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+jobID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, keyPrefix+jobID).Err()
}
