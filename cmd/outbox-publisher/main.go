package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/instance"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/migrate"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/registry"
	"github.com/angelmondragon/invoice-review/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewReviewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "topics", strings.Join(eventRegistry.Topics(), ",")), "starting outbox publisher")
	return service.Run(ctx)
}
