package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/edukamer/edupay-backend/api/routes"
	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/internal/reconcile"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	"github.com/edukamer/edupay-backend/pkg/campay"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/db"
	"github.com/edukamer/edupay-backend/pkg/logger"
	"github.com/edukamer/edupay-backend/pkg/migrate"
	"github.com/edukamer/edupay-backend/pkg/pubsub"
	"github.com/edukamer/edupay-backend/pkg/redis"
)

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
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	campayClient, err := campay.NewClient(cfg.CamPay, cfg.App.Env)
	if err != nil {
		logg.Error(context.Background(), "failed to create campay client", err)
		os.Exit(1)
	}

	plansRepo := plans.NewRepository(dbClient.DB())
	planService, err := plans.NewService(plans.ServiceParams{Repo: plansRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:  subscriptions.NewRepository(dbClient.DB()),
		Plans: plansRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

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
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	enqueuer, err := reconcile.NewEnqueuer(pubsubClient.PaymentsPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook enqueuer", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			PubSub:        pubsubClient,
			Plans:         planService,
			Payments:      paymentService,
			Subscriptions: subscriptionService,
			Notifications: notificationService,
			Enqueuer:      enqueuer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
