package faq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const cacheKeyPrefix = "faq:unit:"

// CachedCatalog is a Redis read-through cache in front of a FAQSource.
// Redis failures fall back to the source.
type CachedCatalog struct {
	source conversation.FAQSource
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ conversation.FAQSource = (*CachedCatalog)(nil)

// NewCachedCatalog wraps source with a Redis cache. A non-positive ttl
// defaults to ten minutes.
func NewCachedCatalog(source conversation.FAQSource, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedCatalog {
	if source == nil {
		panic("faq: source cannot be nil")
	}
	if client == nil {
		panic("faq: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedCatalog{source: source, client: client, ttl: ttl, logger: logger}
}

// FAQsByOrganizationUnit serves the unit from Redis when present, otherwise
// loads it from the source and stores the result for the ttl.
func (c *CachedCatalog) FAQsByOrganizationUnit(ctx context.Context, unit string) ([]conversation.FAQ, error) {
	key := cacheKey(unit)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []conversation.FAQ
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("discarding corrupt faq cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("faq cache read failed", "key", key, "error", err)
	}

	faqs, err := c.source.FAQsByOrganizationUnit(ctx, unit)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(faqs)
	if err == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("faq cache write failed", "key", key, "error", setErr)
		}
	}
	return faqs, nil
}

// Invalidate drops the cached entries for unit.
func (c *CachedCatalog) Invalidate(ctx context.Context, unit string) error {
	return c.client.Del(ctx, cacheKey(unit)).Err()
}

func cacheKey(unit string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(unit))
}
