package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/invoice-review/internal/maintenance"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/instance"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/migrate"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "maintenance-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "maintenance-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	queueService, err := reconciliation.NewService(reconciliation.ServiceParams{
		Repo:    reconciliation.NewRepository(dbClient.DB()),
		Cache:   redisClient,
		TTL:     cfg.Review.QueueCacheTTL,
		Logger:  logg,
		Metrics: metrics.NewReviewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}
	retention, err := maintenance.NewOutboxRetentionJob(maintenance.OutboxRetentionParams{
		Logger:         logg,
		DB:             dbClient,
		Outbox:         outbox.NewRepository(dbClient.DB()),
		Retention:      cfg.Maintenance.OutboxRetention,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	warm, err := maintenance.NewQueueWarmJob(logg, queueService)
	if err != nil {
		logg.Error(context.Background(), "failed to create queue warm job", err)
		os.Exit(1)
	}

	lock, err := maintenance.NewRedisLock(redisClient, cfg.App.Env, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance lock", err)
		os.Exit(1)
	}
	service, err := maintenance.NewService(maintenance.ServiceParams{
		Logger:   logg,
		Registry: maintenance.NewRegistry(retention, warm),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "maintenance-worker",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting maintenance worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "maintenance worker shutting down gracefully")
}
