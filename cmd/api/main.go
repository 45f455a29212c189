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
	"go.uber.org/multierr"

	"github.com/angelmondragon/invoice-review/api/controllers"
	"github.com/angelmondragon/invoice-review/api/routes"
	"github.com/angelmondragon/invoice-review/internal/bronze"
	"github.com/angelmondragon/invoice-review/internal/dashboard"
	"github.com/angelmondragon/invoice-review/internal/ingestion"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/internal/review"
	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	"github.com/angelmondragon/invoice-review/internal/summarizer"
	"github.com/angelmondragon/invoice-review/internal/viewer"
	"github.com/angelmondragon/invoice-review/pkg/bigquery"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/instance"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/migrate"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/redis"
	"github.com/angelmondragon/invoice-review/pkg/render"
	"github.com/angelmondragon/invoice-review/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, gcsClient.Close()) }()

	bqClient, err := bigquery.NewClient(bootCtx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, bqClient.Close()) }()

	reviewMetrics := metrics.NewReviewMetrics(prometheus.DefaultRegisterer)

	sessions, err := reviewsession.NewStore(redisClient, cfg.Review)
	if err != nil {
		return err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	bronzeService, err := bronze.NewService(bronze.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}
	reconRepo := reconciliation.NewRepository(dbClient.DB())
	queueService, err := reconciliation.NewService(reconciliation.ServiceParams{
		Repo:    reconRepo,
		Cache:   redisClient,
		TTL:     cfg.Review.QueueCacheTTL,
		Logger:  logg,
		Metrics: reviewMetrics,
	})
	if err != nil {
		return err
	}
	summaryService, err := summarizer.NewService(summarizer.ServiceParams{
		Source:    reconRepo,
		Completer: bqClient,
		Sessions:  sessions,
		Model:     cfg.BigQuery.CompletionModel,
		Logger:    logg,
		Metrics:   reviewMetrics,
	})
	if err != nil {
		return err
	}
	viewerService, err := viewer.NewService(viewer.ServiceParams{
		Objects:     gcsClient,
		Sessions:    sessions,
		Open:        render.Open,
		StagePrefix: cfg.GCS.StagePrefix,
		Scale:       cfg.Review.RenderScale,
		CacheSize:   cfg.Review.DocumentCacheMax,
		Logger:      logg,
		Metrics:     reviewMetrics,
	})
	if err != nil {
		return err
	}
	locker, err := review.NewRedisLocker(redisClient, cfg.Review.SubmitLockTTL)
	if err != nil {
		return err
	}
	reviewService, err := review.NewService(review.ServiceParams{
		Repo:     review.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Bronze:   bronzeService,
		Queue:    queueService,
		Sessions: sessions,
		Outbox:   outboxService,
		Locker:   locker,
		Logger:   logg,
		Metrics:  reviewMetrics,
	})
	if err != nil {
		return err
	}
	ingestionService, err := ingestion.NewService(ingestion.ServiceParams{
		Repo:        ingestion.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Store:       gcsClient,
		Outbox:      outboxService,
		Bucket:      gcsClient.DefaultBucket(),
		StagePrefix: cfg.GCS.StagePrefix,
		URLExpiry:   cfg.GCS.DownloadURLExpiry,
		MaxBytes:    int64(cfg.Review.MaxUploadMB) << 20,
		Logger:      logg,
		Metrics:     reviewMetrics,
	})
	if err != nil {
		return err
	}
	dashboardService, err := dashboard.NewService(dashboard.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Health: map[string]controllers.Pinger{
			"db":       dbClient,
			"redis":    redisClient,
			"gcs":      gcsClient,
			"bigquery": bqClient,
		},
		Sessions:       sessions,
		Ingestion:      ingestionService,
		Reconciliation: queueService,
		Bronze:         bronzeService,
		Summarizer:     summaryService,
		Viewer:         viewerService,
		Review:         reviewService,
		Dashboard:      dashboardService,
		Metrics:        promhttp.Handler(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
