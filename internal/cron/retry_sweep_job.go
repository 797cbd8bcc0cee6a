package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/edukamer/edupay-backend/internal/reconcile"
	"github.com/edukamer/edupay-backend/pkg/campay"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

type retryableReader interface {
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
}

type statusChecker interface {
	GetTransactionStatus(ctx context.Context, reference string) (*campay.TransactionStatus, error)
}

type eventProcessor interface {
	Process(ctx context.Context, event reconcile.WebhookEvent) (*reconcile.Outcome, error)
}

// RetrySweepJobParams configure the failed collection sweeper.
type RetrySweepJobParams struct {
	Logger    *logger.Logger
	Repo      retryableReader
	CamPay    statusChecker
	Reconcile eventProcessor
	Config    config.PaymentsConfig
}

// NewRetrySweepJob builds the cron job that re-checks unsettled collections
// against the aggregator and abandons the ones past the attempt cap.
func NewRetrySweepJob(params RetrySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.CamPay == nil {
		return nil, fmt.Errorf("campay client required")
	}
	if params.Reconcile == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	return &retrySweepJob{
		logg:      params.Logger,
		repo:      params.Repo,
		campay:    params.CamPay,
		reconcile: params.Reconcile,
		cfg:       params.Config,
		now:       time.Now,
	}, nil
}

type retrySweepJob struct {
	logg      *logger.Logger
	repo      retryableReader
	campay    statusChecker
	reconcile eventProcessor
	cfg       config.PaymentsConfig
	now       func() time.Time
}

func (j *retrySweepJob) Name() string { return "payment-retry-sweep" }

func (j *retrySweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	txns, err := j.repo.ListRetryable(ctx, now, j.cfg.RetryBatchSize)
	if err != nil {
		return fmt.Errorf("list retryable transactions: %w", err)
	}

	var errs []error
	for _, txn := range txns {
		if err := j.sweep(ctx, txn, now); err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", txn.Reference, err))
		}
	}
	if len(txns) > 0 {
		logCtx := j.logg.WithField(ctx, "count", len(txns))
		j.logg.Info(logCtx, "retry sweep processed batch")
	}
	return multierr.Combine(errs...)
}

func (j *retrySweepJob) sweep(ctx context.Context, txn models.Transaction, now time.Time) error {
	logCtx := j.logg.WithTransactionRef(ctx, txn.Reference)

	if txn.RetryCount >= j.maxAttempts() {
		txn.AbandonedAt = &now
		txn.NextRetryAt = nil
		if err := j.repo.UpdateTransaction(ctx, &txn); err != nil {
			return err
		}
		j.logg.Warn(logCtx, "collection abandoned after retry cap")
		return nil
	}

	// Collections that never produced a callback have no aggregator reference
	// to re-check; they just burn an attempt.
	if txn.ExternalReference != "" {
		status, err := j.campay.GetTransactionStatus(ctx, txn.ExternalReference)
		if err != nil {
			j.logg.Error(logCtx, "status re-check failed", err)
		} else if status.Status == string(enums.TransactionStatusSuccessful) {
			// the aggregator settled after the webhook; replay through the
			// reconciler so the subscription gets granted
			_, err := j.reconcile.Process(ctx, syntheticEvent(txn, status))
			return err
		}
	}

	txn.RetryCount++
	retryAt := now.Add(j.backoff(txn.RetryCount))
	txn.NextRetryAt = &retryAt
	return j.repo.UpdateTransaction(ctx, &txn)
}

func syntheticEvent(txn models.Transaction, status *campay.TransactionStatus) reconcile.WebhookEvent {
	amount := txn.Amount
	if parsed, err := decimal.NewFromString(status.Amount); err == nil && !parsed.IsZero() {
		amount = parsed
	}
	return reconcile.WebhookEvent{
		Status:            status.Status,
		Reference:         status.Reference,
		ExternalReference: txn.Reference,
		Amount:            amount,
		Currency:          status.Currency,
		Operator:          status.Operator,
		OperatorReference: status.OperatorReference,
		Code:              status.Code,
		PhoneNumber:       txn.PhoneNumber,
		Endpoint:          txn.Endpoint,
	}
}

func (j *retrySweepJob) maxAttempts() int {
	if j.cfg.RetryMaxAttempts <= 0 {
		return 12
	}
	return j.cfg.RetryMaxAttempts
}

func (j *retrySweepJob) backoff(attempt int) time.Duration {
	base := j.cfg.RetryBackoffBase
	if base <= 0 {
		base = 10 * time.Minute
	}
	max := j.cfg.RetryBackoffMax
	if max <= 0 {
		max = 6 * time.Hour
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
