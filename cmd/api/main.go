package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-concierge/internal/api/router"
	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/http/handlers"
	"github.com/wolfman30/whatsapp-concierge/internal/whatsapp"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting whatsapp-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap.LoadSecrets(ctx, cfg, logger); err != nil {
		logger.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, worker, rt, err := setup(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if worker != nil {
		worker.Start(ctx)
		logger.Info("in-process conversation workers started", "count", cfg.WorkerCount)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if worker != nil {
		waitForWorker(shutdownCtx, worker, logger)
	}
	logger.Info("server stopped")
}

// setup wires the HTTP surface. The worker is nil when events go to SQS.
func setup(ctx context.Context, cfg *appconfig.Config, reg *prometheus.Registry, logger *logging.Logger) (*http.Server, *conversation.Worker, *bootstrap.Runtime, error) {
	rt, err := bootstrap.BuildRuntime(ctx, cfg, reg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	queue, err := bootstrap.BuildQueue(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, nil, nil, err
	}

	publisher := conversation.NewPublisher(queue, logger)
	var worker *conversation.Worker
	if cfg.UseMemoryQueue {
		worker = conversation.NewWorker(rt.Orchestrator, queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
	}

	handler := router.New(&router.Config{
		Logger:          logger,
		Webhook:         whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, publisher, rt.Metrics, logger),
		AdminUsers:      handlers.NewAdminUsersHandler(rt.Storage.Store, rt.Gateway, logger),
		FAQs:            rt.FAQAdmin,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:    rt.HealthChecks(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, worker, rt, nil
}

func waitForWorker(ctx context.Context, worker *conversation.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("conversation workers stopped")
	case <-ctx.Done():
		logger.Error("conversation worker shutdown timed out", "error", ctx.Err())
	}
}
