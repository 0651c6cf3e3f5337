package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activePrefix    = "teraleech:active:"
	deliveredPrefix = "teraleech:delivered:"
)

// ActiveIndex remembers the latest job of each user so /cancel knows what to
// stop.
type ActiveIndex struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewActiveIndex(rdb *redis.Client) *ActiveIndex {
	return &ActiveIndex{rdb: rdb, ttl: 6 * time.Hour}
}

func (a *ActiveIndex) Set(ctx context.Context, userID int64, jobID string) error {
	return a.rdb.Set(ctx, activeKey(userID), jobID, a.ttl).Err()
}

// Get returns "" when the user has no running job.
func (a *ActiveIndex) Get(ctx context.Context, userID int64) (string, error) {
	jobID, err := a.rdb.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return jobID, err
}

// Finish drops the entry only if it still points at jobID.
func (a *ActiveIndex) Finish(ctx context.Context, userID int64, jobID string) error {
	current, err := a.Get(ctx, userID)
	if err != nil || current != jobID {
		return err
	}
	return a.rdb.Del(ctx, activeKey(userID)).Err()
}

func activeKey(userID int64) string {
	return fmt.Sprintf("%s%d", activePrefix, userID)
}

// RedisLedger records delivered files so a retried task skips them.
type RedisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: 48 * time.Hour}
}

func (l *RedisLedger) Delivered(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, deliveredPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkDelivered(ctx context.Context, key string) error {
	return l.rdb.Set(ctx, deliveredPrefix+key, time.Now().Unix(), l.ttl).Err()
}
