package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/open-notifier/internal/adapter/api"
	"github.com/user/open-notifier/internal/adapter/crm"
	"github.com/user/open-notifier/internal/adapter/dedup"
	"github.com/user/open-notifier/internal/adapter/metrics"
	"github.com/user/open-notifier/internal/adapter/notifier"
	"github.com/user/open-notifier/internal/adapter/repository/postgres"
	"github.com/user/open-notifier/internal/adapter/repository/sqlite"
	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/pkg/config"
	"github.com/user/open-notifier/internal/pkg/logger"
	"github.com/user/open-notifier/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Durable Open Log ---
	var store domain.OpenLogRepository
	switch cfg.DatabaseDriver {
	case "postgres":
		store, err = postgres.NewOpenLogRepository(ctx, cfg.PostgresURL, logger)
	default:
		store, err = sqlite.NewOpenLogRepository(cfg.DatabasePath, logger)
	}
	if err != nil {
		logger.Error("failed to open log store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// --- Recency Index ---
	var index domain.RecencyIndex = dedup.NewMemoryIndex(cfg.CacheRetention)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisIndex, err := dedup.NewRedisIndex(ctx, redisClient, logger, cfg.CacheRetention)
		if err != nil {
			logger.Warn("could not connect to redis, falling back to in-memory index", "error", err)
		} else {
			index = redisIndex
		}
	}

	// --- Outbound Notifier ---
	var notify domain.Notifier
	webhooks := notifier.LoadWebhooks(cfg.DiscordConfigFile, cfg.DiscordWebhookURL, logger)
	if len(webhooks) > 0 {
		notify, err = notifier.NewDiscord(webhooks, cfg.NotifyTimeout, cfg.NotifyRatePerMin, logger)
		if err != nil {
			logger.Error("failed to initialize discord notifier", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no discord webhooks configured, notifications go to stdout")
		notify = notifier.NewStdout()
	}

	// --- CRM Client ---
	var crmClient domain.CRMClient
	if cfg.CloseAPIKey != "" {
		crmClient = crm.NewCloseClient(cfg.CloseAPIKey, cfg.CloseAPIURL, cfg.CRMTimeout, logger)
	} else {
		logger.Warn("no CRM API key configured, lead lookups and polling are disabled")
	}

	// --- Use Cases ---
	ingestUseCase := usecase.NewIngestOpenUseCase(index, store, notify, logger, m, cfg.NotifyTimeout)
	analyticsUseCase := usecase.NewAnalyticsUseCase(store, logger)

	var pollStatus func() usecase.PollStatus
	if cfg.PollingEnabled && crmClient != nil {
		poller := usecase.NewPollOpensUseCase(crmClient, ingestUseCase, logger, m, cfg.PollInterval, cfg.PollLookback, cfg.CRMTimeout)
		pollStatus = poller.Status
		go poller.Run(ctx)
	}

	// --- HTTP Server ---
	router := api.NewRouter(cfg, logger, api.RouterDeps{
		Ingest:     ingestUseCase,
		Analytics:  analyticsUseCase,
		Index:      index,
		Notifier:   notify,
		Leads:      crmClient,
		PollStatus: pollStatus,
		Metrics:    m,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting notifier server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server shut down gracefully")
}
