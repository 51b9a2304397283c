// ABOUTME: Idempotency-key deduplication for posted commands.
// ABOUTME: Redis SetNX lets every server instance see keys already spent.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// dedupeTTL bounds how long a spent idempotency key blocks resubmission.
// Client retries arrive within seconds; ten minutes outlasts any sane retry
// loop without letting keys pile up.
const dedupeTTL = 10 * time.Minute

// Deduper records spent idempotency keys. Add reports whether the key was
// fresh; Remove releases a key so a failed command may be retried.
type Deduper interface {
	Add(ctx context.Context, boardID ulid.ULID, key string) (bool, error)
	Remove(ctx context.Context, boardID ulid.ULID, key string) error
}

// RedisDeduper shares spent keys through Redis so any instance serving the
// same boards drops retried submissions.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
// A non-positive TTL selects the default.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = dedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(boardID ulid.ULID, key string) string {
	return fmt.Sprintf("dedupe:%s:%s", boardID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (d *RedisDeduper) Add(ctx context.Context, boardID ulid.ULID, key string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKey(boardID, key), 1, d.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when downstream
// processing fails so the caller may retry the command.
func (d *RedisDeduper) Remove(ctx context.Context, boardID ulid.ULID, key string) error {
	return d.client.Del(ctx, dedupeKey(boardID, key)).Err()
}

// NoopDeduper accepts every key. Used when no Redis is configured; a retried
// command then reaches the store twice, which is safe for everything except
// duplicate creates.
type NoopDeduper struct{}

// Add always reports the key as fresh.
func (NoopDeduper) Add(context.Context, ulid.ULID, string) (bool, error) { return true, nil }

// Remove is a no-op.
func (NoopDeduper) Remove(context.Context, ulid.ULID, string) error { return nil }
