package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dedupe:whatsapp:"

// Redis shares in-flight markers between instances with SET NX and a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Deduplicator = (*Redis)(nil)

// NewRedis builds a Redis deduplicator. A non-positive ttl defaults to five minutes.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if client == nil {
		panic("dedupe: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

// Admit claims messageID with SET NX. It reports false when another handler
// already holds the marker.
func (r *Redis) Admit(ctx context.Context, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, ErrEmptyID
	}
	ok, err := r.client.SetNX(ctx, redisKey(messageID), time.Now().UTC().Format(time.RFC3339Nano), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: redis admit: %w", err)
	}
	return ok, nil
}

// Release deletes the marker so a redelivery can be admitted again.
func (r *Redis) Release(ctx context.Context, messageID string) error {
	if err := r.client.Del(ctx, redisKey(messageID)).Err(); err != nil {
		return fmt.Errorf("dedupe: redis release: %w", err)
	}
	return nil
}

func redisKey(messageID string) string {
	return redisKeyPrefix + messageID
}
