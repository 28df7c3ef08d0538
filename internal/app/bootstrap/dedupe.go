package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/dedupe"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// BuildDeduplicator picks the in-flight marker backend named by DEDUP_BACKEND.
// The returned closer is never nil.
func BuildDeduplicator(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (dedupe.Deduplicator, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.DedupBackend {
	case "", "memory":
		mem := dedupe.NewMemory(cfg.DedupStaleAfter)
		return mem, mem.Close, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("bootstrap: DEDUP_BACKEND=redis requires REDIS_ADDR")
		}
		logger.Info("redis deduplicator enabled", "ttl", cfg.DedupTTL)
		return dedupe.NewRedis(redisClient, cfg.DedupTTL), func() {}, nil
	case "dynamodb":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		logger.Info("dynamodb deduplicator enabled", "table", cfg.DedupTable, "ttl", cfg.DedupTTL)
		return dedupe.NewDynamo(NewDynamoClient(awsCfg, cfg), cfg.DedupTable, cfg.DedupTTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown DEDUP_BACKEND %q", cfg.DedupBackend)
	}
}
