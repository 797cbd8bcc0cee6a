package payments

import (
	"context"
	"encoding/json"
	"testing"
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
)

type stubPaymentsRepo struct {
	references   []*models.PaymentReference
	transactions []*models.Transaction
	updates      []*models.Transaction
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubPaymentsRepo) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	s.transactions = append(s.transactions, txn)
	return nil
}
func (s *stubPaymentsRepo) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	s.updates = append(s.updates, txn)
	return nil
}
func (s *stubPaymentsRepo) FindTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, nil
}
func (s *stubPaymentsRepo) FindPendingByPhoneAmount(ctx context.Context, phone string, amount decimal.Decimal) (*models.Transaction, error) {
	return nil, nil
}
func (s *stubPaymentsRepo) ListRetryable(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	return nil, nil
}
func (s *stubPaymentsRepo) CreatePaymentReference(ctx context.Context, ref *models.PaymentReference) error {
	s.references = append(s.references, ref)
	return nil
}
func (s *stubPaymentsRepo) FindPaymentReference(ctx context.Context, reference string) (*models.PaymentReference, error) {
	return nil, nil
}
func (s *stubPaymentsRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return nil
}
func (s *stubPaymentsRepo) FindPaymentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error) {
	return nil, nil
}

type stubPlansRepo struct {
	plan *models.SubscriptionPlan
}

func (s *stubPlansRepo) WithTx(tx *gorm.DB) plans.Repository { return s }
func (s *stubPlansRepo) Create(ctx context.Context, plan *models.SubscriptionPlan) error {
	return nil
}
func (s *stubPlansRepo) Update(ctx context.Context, plan *models.SubscriptionPlan) error {
	return nil
}
func (s *stubPlansRepo) List(ctx context.Context, params plans.ListQuery) ([]models.SubscriptionPlan, error) {
	return nil, nil
}
func (s *stubPlansRepo) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	if s.plan != nil && s.plan.ID == id {
		return s.plan, nil
	}
	return nil, nil
}
func (s *stubPlansRepo) FindDefault(ctx context.Context) (*models.SubscriptionPlan, error) {
	return s.plan, nil
}

type fakeLinkCreator struct {
	requests []campay.PaymentLinkRequest
	link     string
	err      error
}

func (f *fakeLinkCreator) CreatePaymentLink(ctx context.Context, req campay.PaymentLinkRequest) (*campay.PaymentLink, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &campay.PaymentLink{Link: f.link}, nil
}

type fakeReferenceCache struct {
	stored map[string]string
	ttls   map[string]time.Duration
}

func newFakeReferenceCache() *fakeReferenceCache {
	return &fakeReferenceCache{stored: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeReferenceCache) StorePaymentReference(ctx context.Context, reference, blob string, ttl time.Duration) error {
	f.stored[reference] = blob
	f.ttls[reference] = ttl
	return nil
}

func (f *fakeReferenceCache) GetPaymentReference(ctx context.Context, reference string) (string, error) {
	return f.stored[reference], nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func activePlan() *models.SubscriptionPlan {
	return &models.SubscriptionPlan{
		ID:           "standard",
		Name:         "Standard",
		Status:       enums.PlanStatusActive,
		PriceAmount:  decimal.NewFromInt(2500),
		CurrencyCode: "XAF",
		DurationDays: 30,
	}
}

type stubGate struct {
	active bool
	err    error
}

func (s *stubGate) HasActive(context.Context, uuid.UUID) (bool, error) {
	return s.active, s.err
}

func newTestPaymentService(t *testing.T, repo Repository, plansRepo plans.Repository, campayClient linkCreator, cache referenceCache) *Service {
	t.Helper()
	planService, err := plans.NewService(plans.ServiceParams{Repo: plansRepo})
	if err != nil {
		t.Fatalf("plan service: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Plans:             planService,
		Subscriptions:     &stubGate{},
		CamPay:            campayClient,
		Cache:             cache,
		TransactionRunner: passthroughTxRunner{},
		Config: config.PaymentsConfig{
			ReferenceTTL:     24 * time.Hour,
			RetryBackoffBase: 10 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("payment service: %v", err)
	}
	return svc
}

func TestIssuePaymentLinkPersistsBeforeProviderCall(t *testing.T) {
	repo := &stubPaymentsRepo{}
	campayClient := &fakeLinkCreator{link: "https://pay.example/abc"}
	cache := newFakeReferenceCache()
	svc := newTestPaymentService(t, repo, &stubPlansRepo{plan: activePlan()}, campayClient, cache)

	userID := uuid.New()
	issued, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
		UserID:      userID,
		PlanID:      "standard",
		PhoneNumber: "237670000001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.Link != "https://pay.example/abc" {
		t.Fatalf("unexpected link: %s", issued.Link)
	}
	if issued.Reference == "" {
		t.Fatal("reference missing from issued link")
	}

	if len(repo.references) != 1 || len(repo.transactions) != 1 {
		t.Fatalf("expected 1 reference + 1 transaction, got %d/%d", len(repo.references), len(repo.transactions))
	}
	if repo.references[0].Reference != issued.Reference {
		t.Fatal("payment reference not keyed by issued reference")
	}
	if repo.transactions[0].Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending transaction, got %s", repo.transactions[0].Status)
	}

	if len(campayClient.requests) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(campayClient.requests))
	}
	req := campayClient.requests[0]
	if req.Amount != "2500" {
		t.Fatalf("XAF amounts carry no decimals, got %s", req.Amount)
	}
	if req.ExternalReference != issued.Reference {
		t.Fatal("provider request missing external reference")
	}

	blob, ok := cache.stored[issued.Reference]
	if !ok {
		t.Fatal("reference not cached")
	}
	var cached CachedReference
	if err := json.Unmarshal([]byte(blob), &cached); err != nil {
		t.Fatalf("cached blob not json: %v", err)
	}
	if cached.UserID != userID || cached.PlanID != "standard" {
		t.Fatalf("cached reference carries wrong identity: %+v", cached)
	}
	if cache.ttls[issued.Reference] != 24*time.Hour {
		t.Fatalf("unexpected cache ttl: %s", cache.ttls[issued.Reference])
	}
}

func TestIssuePaymentLinkRejectsUnknownPlan(t *testing.T) {
	repo := &stubPaymentsRepo{}
	svc := newTestPaymentService(t, repo, &stubPlansRepo{}, &fakeLinkCreator{}, nil)

	_, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
		UserID:      uuid.New(),
		PlanID:      "ghost",
		PhoneNumber: "237670000001",
	})
	if err == nil {
		t.Fatal("expected error for unknown plan")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(repo.transactions) != 0 {
		t.Fatal("no transaction should be written for unknown plans")
	}
}

func TestIssuePaymentLinkRejectsArchivedPlan(t *testing.T) {
	plan := activePlan()
	plan.Status = enums.PlanStatusArchived
	svc := newTestPaymentService(t, &stubPaymentsRepo{}, &stubPlansRepo{plan: plan}, &fakeLinkCreator{}, nil)

	_, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
		UserID:      uuid.New(),
		PlanID:      "standard",
		PhoneNumber: "237670000001",
	})
	if err == nil {
		t.Fatal("expected error for archived plan")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIssuePaymentLinkValidatesInput(t *testing.T) {
	svc := newTestPaymentService(t, &stubPaymentsRepo{}, &stubPlansRepo{plan: activePlan()}, &fakeLinkCreator{}, nil)

	if _, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{PlanID: "standard", PhoneNumber: "237670000001"}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{UserID: uuid.New(), PhoneNumber: "237670000001"}); err == nil {
		t.Fatal("expected error for missing plan id")
	}

	for _, phone := range []string{"", "670000001", "23767000000", "2376700000012", "237abc000001", "+237670000001"} {
		_, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
			UserID:      uuid.New(),
			PlanID:      "standard",
			PhoneNumber: phone,
		})
		if err == nil {
			t.Fatalf("expected error for phone %q", phone)
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for phone %q, got %v", phone, err)
		}
	}
}

func TestIssuePaymentLinkRejectsActiveSubscriber(t *testing.T) {
	repo := &stubPaymentsRepo{}
	campayClient := &fakeLinkCreator{link: "https://pay.example/abc"}
	svc := newTestPaymentService(t, repo, &stubPlansRepo{plan: activePlan()}, campayClient, nil)
	svc.gate = &stubGate{active: true}

	_, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
		UserID:      uuid.New(),
		PlanID:      "standard",
		PhoneNumber: "237670000001",
	})
	if err == nil {
		t.Fatal("expected error for already-subscribed user")
	}
	coded := pkgerrors.As(err)
	if coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := coded.Details().(map[string]any)
	if !ok || details["active"] != true {
		t.Fatalf("expected active flag in details, got %v", coded.Details())
	}

	if len(repo.transactions) != 0 || len(repo.references) != 0 {
		t.Fatal("no rows should be written when the guard rejects")
	}
	if len(campayClient.requests) != 0 {
		t.Fatal("provider should not be called when the guard rejects")
	}
}

func TestIssuePaymentLinkMarksFailureWhenProviderRejects(t *testing.T) {
	repo := &stubPaymentsRepo{}
	campayClient := &fakeLinkCreator{err: pkgerrors.New(pkgerrors.CodeProvider, "aggregator rejected request")}
	svc := newTestPaymentService(t, repo, &stubPlansRepo{plan: activePlan()}, campayClient, nil)

	_, err := svc.IssuePaymentLink(context.Background(), IssueLinkParams{
		UserID:      uuid.New(),
		PlanID:      "standard",
		PhoneNumber: "237670000001",
	})
	if err == nil {
		t.Fatal("expected provider error to surface")
	}

	if len(repo.updates) != 1 {
		t.Fatalf("expected failed transaction update, got %d", len(repo.updates))
	}
	failed := repo.updates[0]
	if failed.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected FAILED, got %s", failed.Status)
	}
	if failed.NextRetryAt == nil {
		t.Fatal("failed issuance should schedule a retry")
	}
	delta := time.Until(*failed.NextRetryAt)
	if delta < 9*time.Minute || delta > 11*time.Minute {
		t.Fatalf("retry should be scheduled one backoff out, got %s", delta)
	}
}

func TestResolveCachedReference(t *testing.T) {
	cache := newFakeReferenceCache()
	svc := newTestPaymentService(t, &stubPaymentsRepo{}, &stubPlansRepo{plan: activePlan()}, &fakeLinkCreator{}, cache)

	userID := uuid.New()
	blob, _ := json.Marshal(CachedReference{
		UserID:      userID,
		PlanID:      "standard",
		Amount:      decimal.NewFromInt(2500),
		PhoneNumber: "237670000001",
	})
	cache.stored["ref-1"] = string(blob)

	cached, err := svc.ResolveCachedReference(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cached == nil || cached.UserID != userID {
		t.Fatalf("unexpected cached value: %+v", cached)
	}

	missing, err := svc.ResolveCachedReference(context.Background(), "nope")
	if err != nil {
		t.Fatalf("resolve miss: %v", err)
	}
	if missing != nil {
		t.Fatal("cache miss should resolve to nil")
	}
}
