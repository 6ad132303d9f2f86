package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/budget-france/chorus-backend/internal/engagement"
	"github.com/budget-france/chorus-backend/internal/ingest"
	"github.com/budget-france/chorus-backend/internal/payment"
	"github.com/budget-france/chorus-backend/internal/refs"
	"github.com/budget-france/chorus-backend/internal/siret"
	"github.com/budget-france/chorus-backend/pkg/config"
	"github.com/budget-france/chorus-backend/pkg/db"
	"github.com/budget-france/chorus-backend/pkg/entreprise"
	"github.com/budget-france/chorus-backend/pkg/logger"
	"github.com/budget-france/chorus-backend/pkg/metrics"
	"github.com/budget-france/chorus-backend/pkg/migrate"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/pubsub"
	"github.com/budget-france/chorus-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ingest-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "ingest-worker"

	logg = logger.New(logger.Options{
		ServiceName: "ingest-worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	ingestMetrics := metrics.NewIngestMetrics(prometheus.DefaultRegisterer)
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	sirets := siret.NewService(entreprise.NewClient(cfg.Entreprise), logg).
		WithQuota(redisClient, cfg.Entreprise.RateLimit, cfg.Entreprise.RateLimitWindow)

	pipeline, err := ingest.NewPipeline(ingest.PipelineParams{
		DB:          dbClient,
		Engagements: engagement.NewRepository(dbClient.DB()),
		Payments:    payment.NewRepository(dbClient.DB()),
		References:  refs.NewResolver(logg),
		Sirets:      sirets,
		Events:      events,
		Metrics:     ingestMetrics,
		Logger:      logg,
		Config:      cfg.Ingest,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest pipeline", err)
		os.Exit(1)
	}

	consumer, err := ingest.NewConsumer(
		pipeline,
		dbClient,
		events,
		pubsubClient.IngestSubscription(),
		ingestMetrics,
		logg,
		cfg.Ingest,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create chunk consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting ingest worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "ingest worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "ingest worker shutting down gracefully")
}
