package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

const expiryBatchSize = 250

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubscriptionExpiryJobParams configure the expiry job.
type SubscriptionExpiryJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions subscriptions.Repository
	Notifications notifications.Repository
}

// NewSubscriptionExpiryJob builds the cron job that retires subscriptions
// whose paid window has lapsed.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repo required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repo required")
	}
	return &subscriptionExpiryJob{
		logg:          params.Logger,
		db:            params.DB,
		subscriptions: params.Subscriptions,
		notifications: params.Notifications,
		now:           time.Now,
	}, nil
}

type subscriptionExpiryJob struct {
	logg          *logger.Logger
	db            txRunner
	subscriptions subscriptions.Repository
	notifications notifications.Repository
	now           func() time.Time
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.subscriptions.ListExpired(ctx, now, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("list expired subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range expired {
		if err := j.expire(ctx, sub, now); err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", sub.ID, err))
		}
	}
	if len(expired) > 0 {
		logCtx := j.logg.WithField(ctx, "count", len(expired))
		j.logg.Info(logCtx, "expired subscriptions retired")
	}
	return multierr.Combine(errs...)
}

func (j *subscriptionExpiryJob) expire(ctx context.Context, sub models.Subscription, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		subsRepo := j.subscriptions.WithTx(tx)
		notifRepo := j.notifications.WithTx(tx)

		sub.IsActive = false
		if err := subsRepo.Update(ctx, &sub); err != nil {
			return err
		}

		return notifRepo.Create(ctx, &models.Notification{
			UserID: sub.UserID,
			Kind:   enums.NotificationKindSubscriptionExpired,
			Title:  "Subscription expired",
			Body:   "Your subscription has ended. Renew to keep access to your study materials.",
		})
	})
}
