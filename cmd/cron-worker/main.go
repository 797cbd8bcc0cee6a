package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edukamer/edupay-backend/internal/cron"
	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/internal/reconcile"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	"github.com/edukamer/edupay-backend/pkg/campay"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/db"
	"github.com/edukamer/edupay-backend/pkg/logger"
	"github.com/edukamer/edupay-backend/pkg/metrics"
	"github.com/edukamer/edupay-backend/pkg/migrate"
	"github.com/edukamer/edupay-backend/pkg/redis"
)

const lockName = "cron-worker"

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

	campayClient, err := campay.NewClient(cfg.CamPay, cfg.App.Env)
	if err != nil {
		logg.Error(context.Background(), "failed to create campay client", err)
		os.Exit(1)
	}

	paymentsRepo := payments.NewRepository(dbClient.DB())
	subscriptionsRepo := subscriptions.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	plansRepo := plans.NewRepository(dbClient.DB())

	planService, err := plans.NewService(plans.ServiceParams{Repo: plansRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:  subscriptionsRepo,
		Plans: plansRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:              paymentsRepo,
		Plans:             planService,
		Subscriptions:     subscriptionService,
		CamPay:            campayClient,
		Cache:             redisClient,
		TransactionRunner: dbClient,
		Logger:            logg,
		Config:            cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Payments:          paymentsRepo,
		Subscriptions:     subscriptionsRepo,
		Notifications:     notificationsRepo,
		Plans:             plansRepo,
		Cache:             paymentService,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Config:            cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	retrySweep, err := cron.NewRetrySweepJob(cron.RetrySweepJobParams{
		Logger:    logg,
		Repo:      paymentsRepo,
		CamPay:    campayClient,
		Reconcile: reconcileService,
		Config:    cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retry sweep job", err)
		os.Exit(1)
	}

	expiry, err := cron.NewSubscriptionExpiryJob(cron.SubscriptionExpiryJobParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: subscriptionsRepo,
		Notifications: notificationsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription expiry job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(retrySweep, expiry)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
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

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey(fmt.Sprintf("%s:%s", lockName, env))
}
