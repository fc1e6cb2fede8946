package notification

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Deduper decides whether a notice may be sent today.
// Acquire returns true the first time a key is seen; Release forgets a key whose send failed
// so a later run may try again.
type Deduper interface {
	Acquire(ctx context.Context, key Key) (bool, error)
	Release(ctx context.Context, key Key)
}

// LogDeduper uses the notification log itself: a delivered entry for the same key blocks the send.
type LogDeduper struct {
	repo *Repository
}

func NewLogDeduper(repo *Repository) *LogDeduper {
	return &LogDeduper{repo: repo}
}

func (d *LogDeduper) Acquire(ctx context.Context, key Key) (bool, error) {
	delivered, err := d.repo.HasDelivered(ctx, key)
	if err != nil {
		return true, err
	}
	return !delivered, nil
}

// Release is a no-op: failed sends are logged as failed and never block a retry.
func (d *LogDeduper) Release(ctx context.Context, key Key) {}

// RedisDeduper keeps one SETNX key per notice with a TTL.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

// Acquire returns true if this is the first time the key is seen.
// When Redis is unavailable the send is allowed.
func (d *RedisDeduper) Acquire(ctx context.Context, key Key) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key.String(), 1, d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("dedup_key", key.String()).Msg("Redis dedup check failed, allowing send")
		return true, nil
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key Key) {
	if err := d.rdb.Del(ctx, key.String()).Err(); err != nil {
		log.Warn().Err(err).Str("dedup_key", key.String()).Msg("Failed to release dedup key")
	}
}
