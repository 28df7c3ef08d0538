package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/faq"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/internal/whatsapp"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Gateway is the outbound side used by the orchestrator and the admin API.
type Gateway interface {
	conversation.DeliveryGateway
	SendImage(ctx context.Context, address, link, inReplyTo string) error
}

// BuildGateway returns the Cloud API client, or a dry-run gateway when no
// access token is configured.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (Gateway, error) {
	if strings.TrimSpace(cfg.WhatsAppAccessToken) == "" {
		logger.Warn("WHATSAPP_ACCESS_TOKEN not set; outbound messages are only logged")
		return whatsapp.NewDryRunGateway(logger), nil
	}
	client, err := whatsapp.New(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		PublicBaseURL: cfg.PublicBaseURL,
		Timeout:       cfg.WhatsAppTimeout,
		MaxRetries:    cfg.WhatsAppMaxRetries,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: whatsapp client: %w", err)
	}
	return client, nil
}

// BuildQueue returns the in-process queue or SQS, following USE_MEMORY_QUEUE.
func BuildQueue(ctx context.Context, cfg *appconfig.Config) (conversation.Queue, error) {
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(0), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return conversation.NewSQSQueue(NewSQSClient(awsCfg, cfg), cfg.ConversationQueueURL), nil
}

// Runtime bundles the long-lived dependencies shared by the api and worker binaries.
type Runtime struct {
	Config       *appconfig.Config
	Logger       *logging.Logger
	Metrics      *metrics.ConversationMetrics
	Storage      *Storage
	Redis        *redis.Client
	Gateway      Gateway
	FAQAdmin     *faq.Handler
	Orchestrator *conversation.Orchestrator

	closers []func()
}

// RuntimeOption adjusts BuildRuntime.
type RuntimeOption func(*Runtime)

// WithGateway replaces the configured delivery gateway.
func WithGateway(g Gateway) RuntimeOption {
	return func(rt *Runtime) {
		rt.Gateway = g
	}
}

// BuildRuntime wires storage, dedup, generation, delivery and the orchestrator.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewConversationMetrics(reg),
	}
	for _, opt := range opts {
		opt(rt)
	}
	fail := func(err error) (*Runtime, error) {
		rt.Close()
		return nil, err
	}

	prompts, err := conversation.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return fail(fmt.Errorf("bootstrap: %w", err))
	}

	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if rt.Redis != nil {
		rt.closers = append(rt.closers, func() { _ = rt.Redis.Close() })
	}

	storage, err := BuildStorage(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.Storage = storage
	rt.closers = append(rt.closers, storage.Close)

	faqs, faqAdmin := BuildFAQSource(storage, rt.Redis, cfg, logger)
	rt.FAQAdmin = faqAdmin

	dedup, closeDedup, err := BuildDeduplicator(ctx, cfg, rt.Redis, logger)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, closeDedup)

	client, closeLLM, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, closeLLM)

	if rt.Gateway == nil {
		rt.Gateway, err = BuildGateway(cfg, logger)
		if err != nil {
			return fail(err)
		}
	}

	responder := conversation.NewLLMResponder(client, prompts.SystemPrompt,
		conversation.WithHistoryLimit(cfg.HistoryLimit),
		conversation.WithGenerationParams(cfg.LLMMaxTokens, cfg.LLMTemperature),
	)
	router := conversation.NewInteractionRouter(prompts, storage.Store, faqs, responder)
	rt.Orchestrator = conversation.NewOrchestrator(dedup, storage.Store, rt.Gateway, prompts, router, logger,
		conversation.WithMetrics(rt.Metrics),
	)
	return rt, nil
}

// HealthChecks reports the reachable backing services.
func (rt *Runtime) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if rt.Storage != nil && rt.Storage.Pool != nil {
		checks["postgres"] = rt.Storage.Pool.Ping
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases everything BuildRuntime opened, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
