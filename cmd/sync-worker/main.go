package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/learnbill-backend/internal/syncworker"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
	"github.com/angelmondragon/learnbill-backend/pkg/migrate"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/registry"
	"github.com/angelmondragon/learnbill-backend/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
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

	repo := outbox.NewRepository(dbClient.DB())
	service, err := syncworker.NewService(syncworker.ServiceParams{
		Config:    cfg.Sync,
		Logger:    logg,
		Metrics:   metrics.NewBillingMetrics(prometheus.DefaultRegisterer),
		DB:        dbClient,
		PubSub:    pubsubClient,
		Jobs:      repo,
		Attempts:  outbox.NewService(repo, logg),
		Registry:  registry.NewEventRegistry(),
		Publisher: syncworker.NewPubSubPublisher(pubsubClient.AccountingSyncPublisher()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
