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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// The worker consumes inbound events from SQS and runs the orchestrator.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	cfg.UseMemoryQueue = false
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap.LoadSecrets(ctx, cfg, logger); err != nil {
		logger.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	rt, err := bootstrap.BuildRuntime(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	queue, err := bootstrap.BuildQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}

	worker := conversation.NewWorker(
		rt.Orchestrator,
		queue,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithReceiveWaitSeconds(20),
		conversation.WithReceiveBatchSize(10),
	)
	worker.Start(ctx)
	logger.Info("conversation worker started", "count", cfg.WorkerCount, "queue", cfg.ConversationQueueURL)

	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
