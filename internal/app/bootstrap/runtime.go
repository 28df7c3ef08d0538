package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/faq"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Storage is the persistence chosen from config. Pool and DB are nil for the
// in-memory store.
type Storage struct {
	Store conversation.Store
	Pool  *pgxpool.Pool
	DB    *sql.DB
}

// Close releases the database handles.
func (s *Storage) Close() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// BuildStorage connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; conversations are kept in memory")
		return &Storage{Store: conversation.NewMemoryStore()}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres store enabled")
	return &Storage{
		Store: conversation.NewPostgresStore(pool),
		Pool:  pool,
		DB:    stdlib.OpenDBFromPool(pool),
	}, nil
}

// BuildFAQSource layers the Redis cache over the FAQ table when both exist.
// It returns nil when FAQs should be read straight from the conversation store.
func BuildFAQSource(storage *Storage, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) (conversation.FAQSource, *faq.Handler) {
	if storage == nil || storage.DB == nil {
		return nil, nil
	}
	repo := faq.NewSQLRepository(storage.DB)
	if redisClient == nil {
		return repo, faq.NewHandler(repo, nil, logger)
	}
	cached := faq.NewCachedCatalog(repo, redisClient, cfg.FAQCacheTTL, logger)
	return cached, faq.NewHandler(repo, cached, logger)
}
