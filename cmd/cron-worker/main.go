package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/learnbill-backend/internal/cron"
	"github.com/angelmondragon/learnbill-backend/internal/learning"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/instance"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
	"github.com/angelmondragon/learnbill-backend/pkg/migrate"
	"github.com/angelmondragon/learnbill-backend/pkg/redis"
)

const lockKeyFormat = "lb:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)

	components, err := learning.Build(learning.BuildParams{
		Config:   cfg,
		DB:       dbClient.DB(),
		Cache:    redisClient,
		Metrics:  billingMetrics,
		Logger:   logg,
		RunnerID: instance.GetID(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire learning services", err)
		os.Exit(1)
	}

	renewalsJob, err := cron.NewRenewalsJob(cron.RenewalsJobParams{
		Logger: logg,
		Runner: components.Renewals,
		Limit:  cfg.Renewal.BatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewals job", err)
		os.Exit(1)
	}
	backlogJob, err := cron.NewPendingBacklogJob(cron.PendingBacklogJobParams{
		Logger:  logg,
		Charges: components.Charges,
		Metrics: billingMetrics,
		Age:     cfg.Billing.PendingBacklogAge,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending backlog job", err)
		os.Exit(1)
	}
	deadLetterJob, err := cron.NewSyncDeadLetterJob(cron.SyncDeadLetterJobParams{
		Logger: logg,
		Jobs:   components.SyncJobs,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync dead letter job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(renewalsJob, backlogJob, deadLetterJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Renewal.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
