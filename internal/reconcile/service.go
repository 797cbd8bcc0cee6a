package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/db"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
	"github.com/edukamer/edupay-backend/pkg/metrics"
)

// Match paths reported in outcomes and metrics.
const (
	PathExact     = "exact"
	PathReference = "reference"
	PathCache     = "cache"
	PathHeuristic = "heuristic"
)

var (
	errAlreadyProcessed = errors.New("transaction already processed")
	// errPlanMissing marks a settled collection whose plan row is gone.
	// Redelivery cannot fix that, so the event is parked instead of nacked.
	errPlanMissing = errors.New("plan missing for settled transaction")
)

type cacheResolver interface {
	ResolveCachedReference(ctx context.Context, reference string) (*payments.CachedReference, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the reconciliation service.
type ServiceParams struct {
	Payments          payments.Repository
	Subscriptions     subscriptions.Repository
	Notifications     notifications.Repository
	Plans             plans.Repository
	Cache             cacheResolver
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.ReconcileMetrics
	Config            config.PaymentsConfig
}

// Service turns aggregator callbacks into settled transactions and
// subscription grants.
type Service struct {
	payments      payments.Repository
	subscriptions subscriptions.Repository
	notifications notifications.Repository
	plans         plans.Repository
	cache         cacheResolver
	txRunner      txRunner
	logg          *logger.Logger
	metrics       *metrics.ReconcileMetrics
	cfg           config.PaymentsConfig
}

// NewService builds a reconciliation service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, errors.New("payments repo is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions repo is required")
	}
	if params.Notifications == nil {
		return nil, errors.New("notifications repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		payments:      params.Payments,
		subscriptions: params.Subscriptions,
		notifications: params.Notifications,
		plans:         params.Plans,
		cache:         params.Cache,
		txRunner:      params.TransactionRunner,
		logg:          params.Logger,
		metrics:       params.Metrics,
		cfg:           params.Config,
	}, nil
}

// Outcome summarizes what a processed event did.
type Outcome struct {
	Reference        string
	Status           enums.TransactionStatus
	Path             string
	SubscriptionID   *uuid.UUID
	AlreadyProcessed bool
	Orphaned         bool
}

// Process reconciles a single webhook event. Errors are transient faults
// worth redelivering; business dead-ends (orphans, replays, malformed
// statuses) resolve to an Outcome so the message can be acked.
func (s *Service) Process(ctx context.Context, event WebhookEvent) (*Outcome, error) {
	ctx = s.logg.WithTransactionRef(ctx, event.ExternalReference)

	status, err := enums.ParseTransactionStatus(event.Status)
	if err != nil {
		s.logg.Error(ctx, "unrecognized webhook status", err)
		return &Outcome{Reference: event.ExternalReference, Orphaned: true}, nil
	}

	txn, path, err := s.resolve(ctx, event)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		s.logg.Warn(ctx, "webhook event matched no collection; parking as orphan")
		if s.metrics != nil {
			s.metrics.IncOrphan()
		}
		return &Outcome{Reference: event.ExternalReference, Status: status, Orphaned: true}, nil
	}

	if txn.Status == enums.TransactionStatusSuccessful {
		return &Outcome{
			Reference:        txn.Reference,
			Status:           txn.Status,
			Path:             path,
			AlreadyProcessed: true,
		}, nil
	}

	outcome := &Outcome{Reference: txn.Reference, Status: status, Path: path}
	now := time.Now().UTC()
	prevStatus := txn.Status

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := s.payments.WithTx(tx)
		subsRepo := s.subscriptions.WithTx(tx)
		notifRepo := s.notifications.WithTx(tx)

		// exact and heuristic matches resolve to rows that already exist;
		// reference and cache matches reconstruct the collection from scratch
		if path == PathReference || path == PathCache {
			if err := paymentsRepo.CreateTransaction(ctx, txn); err != nil {
				if db.IsUniqueViolation(err, "") {
					return errAlreadyProcessed
				}
				return err
			}
		}

		applyEventFields(txn, event, status)

		switch status {
		case enums.TransactionStatusSuccessful:
			subID, err := s.settle(ctx, paymentsRepo, subsRepo, notifRepo, txn, event, now)
			if err != nil {
				return err
			}
			outcome.SubscriptionID = subID
			txn.NextRetryAt = nil
		case enums.TransactionStatusFailed:
			retryAt := now.Add(s.backoff(txn.RetryCount))
			txn.NextRetryAt = &retryAt
			// redelivered FAILED callbacks would otherwise re-notify the
			// user on every replay of the same collection
			if prevStatus != enums.TransactionStatusFailed {
				if err := notifRepo.Create(ctx, &models.Notification{
					UserID: txn.UserID,
					Kind:   enums.NotificationKindPaymentFailed,
					Title:  "Payment failed",
					Body:   fmt.Sprintf("Your payment of %s %s could not be completed.", txn.Amount.StringFixed(0), txn.Currency),
				}); err != nil {
					return err
				}
			}
		}

		return paymentsRepo.UpdateTransaction(ctx, txn)
	})
	if errors.Is(err, errAlreadyProcessed) {
		outcome.AlreadyProcessed = true
		err = nil
	}
	if errors.Is(err, errPlanMissing) {
		s.logg.Error(ctx, "settled collection references no plan; parking as orphan", err)
		if s.metrics != nil {
			s.metrics.IncOrphan()
		}
		outcome.Orphaned = true
		return outcome, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile transaction")
	}

	if s.metrics != nil {
		s.metrics.IncOutcome(string(outcome.Status), outcome.Path)
	}
	return outcome, nil
}

// resolve finds the collection a callback belongs to: exact reference match
// first, then the durable correlation record, then the redis copy, then the
// phone+amount heuristic.
func (s *Service) resolve(ctx context.Context, event WebhookEvent) (*models.Transaction, string, error) {
	txn, err := s.payments.FindTransaction(ctx, event.ExternalReference)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
	}
	if txn != nil {
		return txn, PathExact, nil
	}

	ref, err := s.payments.FindPaymentReference(ctx, event.ExternalReference)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment reference")
	}
	if ref != nil {
		return &models.Transaction{
			Reference:   ref.Reference,
			Status:      enums.TransactionStatusPending,
			Amount:      ref.Amount,
			AppAmount:   ref.Amount,
			Currency:    event.Currency,
			Endpoint:    "collect",
			Provider:    ref.Provider,
			PhoneNumber: ref.PhoneNumber,
			UserID:      ref.UserID,
			PlanID:      ref.PlanID,
		}, PathReference, nil
	}

	if s.cache != nil {
		cached, err := s.cache.ResolveCachedReference(ctx, event.ExternalReference)
		if err != nil {
			s.logg.Error(ctx, "cache lookup failed; falling through", err)
		} else if cached != nil {
			return &models.Transaction{
				Reference:   event.ExternalReference,
				Status:      enums.TransactionStatusPending,
				Amount:      cached.Amount,
				AppAmount:   cached.Amount,
				Currency:    event.Currency,
				Endpoint:    "collect",
				Provider:    enums.PaymentProviderCamPay,
				PhoneNumber: cached.PhoneNumber,
				UserID:      cached.UserID,
				PlanID:      cached.PlanID,
			}, PathCache, nil
		}
	}

	txn, err = s.payments.FindPendingByPhoneAmount(ctx, event.NormalizedPhone(), event.Amount)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "heuristic lookup")
	}
	if txn != nil {
		return txn, PathHeuristic, nil
	}
	return nil, "", nil
}

// settle grants plan access for a successful collection. Everything runs in
// the caller's transaction; a failure anywhere rolls the whole grant back.
func (s *Service) settle(
	ctx context.Context,
	paymentsRepo payments.Repository,
	subsRepo subscriptions.Repository,
	notifRepo notifications.Repository,
	txn *models.Transaction,
	event WebhookEvent,
	now time.Time,
) (*uuid.UUID, error) {
	existing, err := subsRepo.FindByTransactionRef(ctx, txn.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &existing.ID, errAlreadyProcessed
	}

	plan, err := s.plans.FindByID(ctx, txn.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("plan %q: %w", txn.PlanID, errPlanMissing)
	}

	if _, err := subsRepo.DeactivateActiveForUser(ctx, txn.UserID, now); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:             uuid.New(),
		UserID:         txn.UserID,
		PlanID:         txn.PlanID,
		TransactionRef: txn.Reference,
	}
	sub.Activate(now, plan.DurationDays)
	if err := subsRepo.Create(ctx, sub); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, errAlreadyProcessed
		}
		return nil, err
	}

	payment := &models.Payment{
		SubscriptionID:    sub.ID,
		UserID:            txn.UserID,
		Amount:            txn.Amount,
		PhoneNumber:       txn.PhoneNumber,
		Provider:          txn.Provider,
		Operator:          txn.Operator,
		OperatorReference: event.OperatorReference,
		Code:              event.Code,
		Signature:         event.Signature,
	}
	if err := paymentsRepo.CreatePayment(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return &sub.ID, errAlreadyProcessed
		}
		return nil, err
	}

	if err := notifRepo.Create(ctx, &models.Notification{
		UserID: txn.UserID,
		Kind:   enums.NotificationKindSubscriptionActivated,
		Title:  "Subscription activated",
		Body:   fmt.Sprintf("Your %s plan is active until %s.", plan.Name, sub.EndDate.Format("2 January 2006")),
	}); err != nil {
		return nil, err
	}

	return &sub.ID, nil
}

func applyEventFields(txn *models.Transaction, event WebhookEvent, status enums.TransactionStatus) {
	txn.Status = status
	txn.Code = event.Code
	txn.OperatorReference = event.OperatorReference
	txn.ExternalReference = event.Reference
	txn.Signature = event.Signature
	if op, err := enums.ParseOperator(event.Operator); err == nil {
		txn.Operator = &op
	}
	if !event.AppAmount.IsZero() {
		txn.AppAmount = event.AppAmount
	}
}

// backoff doubles the base delay per attempt and clamps at the configured cap.
func (s *Service) backoff(attempt int) time.Duration {
	base := s.cfg.RetryBackoffBase
	if base <= 0 {
		base = 10 * time.Minute
	}
	max := s.cfg.RetryBackoffMax
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
	if delay > max {
		return max
	}
	return delay
}
