package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

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
	"github.com/edukamer/edupay-backend/pkg/pubsub"
	"github.com/edukamer/edupay-backend/pkg/redis"
)

const idempotencyScope = "campay-webhook"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "reconcile-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "reconcile-worker"

	logg = logger.New(logger.Options{
		ServiceName: "reconcile-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	campayClient, err := campay.NewClient(cfg.CamPay, cfg.App.Env)
	requireResource(ctx, logg, "campay client", err)

	plansRepo := plans.NewRepository(dbClient.DB())
	planService, err := plans.NewService(plans.ServiceParams{Repo: plansRepo})
	requireResource(ctx, logg, "plan service", err)

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:  subscriptions.NewRepository(dbClient.DB()),
		Plans: plansRepo,
	})
	requireResource(ctx, logg, "subscription service", err)

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(dbClient.DB()),
		Plans:             planService,
		Subscriptions:     subscriptionService,
		CamPay:            campayClient,
		Cache:             redisClient,
		TransactionRunner: dbClient,
		Logger:            logg,
		Config:            cfg.Payments,
	})
	requireResource(ctx, logg, "payment service", err)

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Payments:          payments.NewRepository(dbClient.DB()),
		Subscriptions:     subscriptions.NewRepository(dbClient.DB()),
		Notifications:     notifications.NewRepository(dbClient.DB()),
		Plans:             plansRepo,
		Cache:             paymentService,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Config:            cfg.Payments,
	})
	requireResource(ctx, logg, "reconcile service", err)

	guard, err := reconcile.NewIdempotencyGuard(redisClient, cfg.Payments.ReferenceTTL, idempotencyScope)
	requireResource(ctx, logg, "idempotency guard", err)

	consumer, err := reconcile.NewConsumer(reconcileService, pubsubClient.PaymentsSubscription(), guard, logg)
	requireResource(ctx, logg, "reconcile consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"env":         cfg.App.Env,
	})
	logg.Info(runCtx, "reconcile worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "reconcile worker not working", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "reconcile worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
