package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultDedupPrefix = "fulfillment:claimed:"

// RedisDedup implements Deduper using Redis SETNX semantics.
type RedisDedup struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// Claim attempts to claim the session id for the configured TTL.
func (r RedisDedup) Claim(ctx context.Context, sessionID string) (bool, error) {
	if r.Client == nil || sessionID == "" {
		return true, nil
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return r.Client.SetNX(ctx, r.key(sessionID), "1", ttl).Result()
}

// Release removes the claim so a later delivery may notify again.
func (r RedisDedup) Release(ctx context.Context, sessionID string) error {
	if r.Client == nil || sessionID == "" {
		return nil
	}
	return r.Client.Del(ctx, r.key(sessionID)).Err()
}

func (r RedisDedup) key(sessionID string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = defaultDedupPrefix
	}
	return prefix + sessionID
}
