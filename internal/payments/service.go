package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/pkg/campay"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

type linkCreator interface {
	CreatePaymentLink(ctx context.Context, req campay.PaymentLinkRequest) (*campay.PaymentLink, error)
}

type referenceCache interface {
	StorePaymentReference(ctx context.Context, reference, blob string, ttl time.Duration) error
	GetPaymentReference(ctx context.Context, reference string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriptionGate interface {
	HasActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CamPay collects from Cameroonian MSISDNs only: country code plus nine digits.
var phonePattern = regexp.MustCompile(`^237\d{9}$`)

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Repo              Repository
	Plans             *plans.Service
	Subscriptions     subscriptionGate
	CamPay            linkCreator
	Cache             referenceCache
	TransactionRunner txRunner
	Logger            *logger.Logger
	Config            config.PaymentsConfig
}

// Service issues payment links and owns the collection records they create.
type Service struct {
	repo     Repository
	plans    *plans.Service
	gate     subscriptionGate
	campay   linkCreator
	cache    referenceCache
	txRunner txRunner
	logg     *logger.Logger
	cfg      config.PaymentsConfig
}

// NewService builds a payments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions gate is required")
	}
	if params.CamPay == nil {
		return nil, errors.New("campay client is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:     params.Repo,
		plans:    params.Plans,
		gate:     params.Subscriptions,
		campay:   params.CamPay,
		cache:    params.Cache,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		cfg:      params.Config,
	}, nil
}

// IssueLinkParams describes a payment link request.
type IssueLinkParams struct {
	UserID      uuid.UUID
	PlanID      string
	PhoneNumber string
	RedirectURL string
}

// IssuedLink is the outcome of a successful link issuance.
type IssuedLink struct {
	Reference string          `json:"reference"`
	Link      string          `json:"link"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PlanID    string          `json:"plan_id"`
}

// CachedReference is the redis-side copy of a payment reference. It survives
// aggregator callbacks that race the database commit and doubles as the
// fallback correlation source after the row is gone.
type CachedReference struct {
	UserID      uuid.UUID       `json:"user_id"`
	PlanID      string          `json:"plan_id"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
}

// IssuePaymentLink generates a reference, records the pending collection, and
// mints a hosted payment page at the aggregator. Records are committed before
// the provider call so a fast callback always finds something to match.
func (s *Service) IssuePaymentLink(ctx context.Context, params IssueLinkParams) (*IssuedLink, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.PlanID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	if !phonePattern.MatchString(params.PhoneNumber) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number must be 237 followed by nine digits").
			WithDetails(map[string]any{"field": "phone_number"})
	}

	active, err := s.gate.HasActive(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an active subscription already covers this account").
			WithDetails(map[string]any{"active": true})
	}

	plan, err := s.plans.FindPurchasable(ctx, params.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reference := GenerateReference(plan.ID, params.UserID, now)

	paymentRef := &models.PaymentReference{
		Reference:   reference,
		UserID:      params.UserID,
		PlanID:      plan.ID,
		Amount:      plan.PriceAmount,
		PhoneNumber: params.PhoneNumber,
		Provider:    enums.PaymentProviderCamPay,
		UID:         uuid.New(),
	}
	txn := &models.Transaction{
		Reference:   reference,
		Status:      enums.TransactionStatusPending,
		Amount:      plan.PriceAmount,
		AppAmount:   plan.PriceAmount,
		Currency:    plan.CurrencyCode,
		Endpoint:    "collect",
		Provider:    enums.PaymentProviderCamPay,
		PhoneNumber: params.PhoneNumber,
		UserID:      params.UserID,
		PlanID:      plan.ID,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreatePaymentReference(ctx, paymentRef); err != nil {
			return err
		}
		return repo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment reference")
	}

	s.cacheReference(ctx, reference, CachedReference{
		UserID:      params.UserID,
		PlanID:      plan.ID,
		Amount:      plan.PriceAmount,
		PhoneNumber: params.PhoneNumber,
	})

	link, err := s.campay.CreatePaymentLink(ctx, campay.PaymentLinkRequest{
		Amount:            plan.PriceAmount.StringFixed(0),
		Currency:          plan.CurrencyCode,
		Description:       fmt.Sprintf("%s subscription", plan.Name),
		ExternalReference: reference,
		RedirectURL:       params.RedirectURL,
	})
	if err != nil {
		s.markIssuanceFailed(ctx, txn)
		return nil, err
	}

	return &IssuedLink{
		Reference: reference,
		Link:      link.Link,
		Amount:    plan.PriceAmount,
		Currency:  plan.CurrencyCode,
		PlanID:    plan.ID,
	}, nil
}

// ResolveCachedReference reads the redis copy of a payment reference.
func (s *Service) ResolveCachedReference(ctx context.Context, reference string) (*CachedReference, error) {
	if s.cache == nil {
		return nil, nil
	}
	blob, err := s.cache.GetPaymentReference(ctx, reference)
	if err != nil || blob == "" {
		return nil, err
	}
	var cached CachedReference
	if err := json.Unmarshal([]byte(blob), &cached); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached reference")
	}
	return &cached, nil
}

func (s *Service) cacheReference(ctx context.Context, reference string, cached CachedReference) {
	if s.cache == nil {
		return
	}
	blob, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.cache.StorePaymentReference(ctx, reference, string(blob), s.cfg.ReferenceTTL); err != nil && s.logg != nil {
		s.logg.Error(ctx, "cache payment reference", err)
	}
}

// markIssuanceFailed records that the aggregator rejected the link request.
// The row stays for the sweeper, which will abandon it once the cap is hit.
func (s *Service) markIssuanceFailed(ctx context.Context, txn *models.Transaction) {
	txn.Status = enums.TransactionStatusFailed
	retryAt := time.Now().UTC().Add(s.cfg.RetryBackoffBase)
	txn.NextRetryAt = &retryAt
	if err := s.repo.UpdateTransaction(ctx, txn); err != nil && s.logg != nil {
		s.logg.Error(ctx, "mark transaction failed", err)
	}
}
