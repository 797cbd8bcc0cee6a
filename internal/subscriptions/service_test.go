package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/pagination"
)

type stubSubsRepo struct {
	active *models.Subscription
	listFn func(ctx context.Context, params ListQuery) ([]models.Subscription, *pagination.Cursor, error)
}

func (s *stubSubsRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubSubsRepo) Create(ctx context.Context, sub *models.Subscription) error {
	return nil
}
func (s *stubSubsRepo) Update(ctx context.Context, sub *models.Subscription) error {
	return nil
}
func (s *stubSubsRepo) FindByTransactionRef(ctx context.Context, reference string) (*models.Subscription, error) {
	return nil, nil
}
func (s *stubSubsRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.active, nil
}
func (s *stubSubsRepo) DeactivateActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return 0, nil
}
func (s *stubSubsRepo) ListByUser(ctx context.Context, params ListQuery) ([]models.Subscription, *pagination.Cursor, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil, nil
}
func (s *stubSubsRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	return nil, nil
}

type stubPlanFinder struct {
	plan *models.SubscriptionPlan
}

func (s *stubPlanFinder) WithTx(tx *gorm.DB) plans.Repository { return s }
func (s *stubPlanFinder) Create(ctx context.Context, plan *models.SubscriptionPlan) error {
	return nil
}
func (s *stubPlanFinder) Update(ctx context.Context, plan *models.SubscriptionPlan) error {
	return nil
}
func (s *stubPlanFinder) List(ctx context.Context, params plans.ListQuery) ([]models.SubscriptionPlan, error) {
	return nil, nil
}
func (s *stubPlanFinder) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	return s.plan, nil
}
func (s *stubPlanFinder) FindDefault(ctx context.Context) (*models.SubscriptionPlan, error) {
	return s.plan, nil
}

func newTestSubscriptionService(t *testing.T, repo Repository, planRepo plans.Repository) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Plans: planRepo})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestCurrentWithoutSubscription(t *testing.T) {
	svc := newTestSubscriptionService(t, &stubSubsRepo{}, &stubPlanFinder{})

	current, err := svc.Current(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.HasAccess {
		t.Fatal("no subscription should mean no access")
	}
	if current.Status != enums.SubscriptionStatusExpired {
		t.Fatalf("expected expired status, got %s", current.Status)
	}
	if current.Subscription != nil {
		t.Fatal("expected nil subscription")
	}
}

func TestCurrentWithActiveSubscription(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		PlanID:    "standard",
		StartDate: now.AddDate(0, 0, -5),
		EndDate:   now.AddDate(0, 0, 25),
		IsActive:  true,
	}
	plan := &models.SubscriptionPlan{ID: "standard", Name: "Standard", DurationDays: 30}
	svc := newTestSubscriptionService(t, &stubSubsRepo{active: sub}, &stubPlanFinder{plan: plan})

	current, err := svc.Current(context.Background(), sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !current.HasAccess {
		t.Fatal("active window should grant access")
	}
	if current.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", current.Status)
	}
	if current.Plan == nil || current.Plan.ID != "standard" {
		t.Fatal("plan not resolved")
	}
}

func TestCurrentWithLapsedWindow(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		PlanID:    "standard",
		StartDate: now.AddDate(0, 0, -40),
		EndDate:   now.AddDate(0, 0, -10),
		IsActive:  true,
	}
	svc := newTestSubscriptionService(t, &stubSubsRepo{active: sub}, &stubPlanFinder{})

	current, err := svc.Current(context.Background(), sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.HasAccess {
		t.Fatal("lapsed window should not grant access")
	}
	if current.Status != enums.SubscriptionStatusExpired {
		t.Fatalf("expected expired, got %s", current.Status)
	}
}

func TestCurrentRequiresUserID(t *testing.T) {
	svc := newTestSubscriptionService(t, &stubSubsRepo{}, &stubPlanFinder{})
	if _, err := svc.Current(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected validation error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistoryInvalidCursor(t *testing.T) {
	svc := newTestSubscriptionService(t, &stubSubsRepo{}, &stubPlanFinder{})
	_, err := svc.History(context.Background(), HistoryParams{UserID: uuid.New(), Cursor: "junk"})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistoryReturnsEntriesAndCursor(t *testing.T) {
	now := time.Now().UTC()
	next := pagination.Cursor{CreatedAt: now.Add(-time.Hour), ID: uuid.New()}
	repo := &stubSubsRepo{
		listFn: func(ctx context.Context, params ListQuery) ([]models.Subscription, *pagination.Cursor, error) {
			return []models.Subscription{
				{ID: uuid.New(), EndDate: now.AddDate(0, 0, 10), IsActive: true, CreatedAt: now},
				{ID: uuid.New(), EndDate: now.AddDate(0, 0, -10), IsActive: true, CreatedAt: now.Add(-time.Hour)},
			}, &next, nil
		},
	}
	svc := newTestSubscriptionService(t, repo, &stubPlanFinder{})

	result, err := svc.History(context.Background(), HistoryParams{UserID: uuid.New(), Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Items))
	}
	if result.Items[0].Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected first entry active, got %s", result.Items[0].Status)
	}
	if result.Items[1].Status != enums.SubscriptionStatusExpired {
		t.Fatalf("expected second entry expired, got %s", result.Items[1].Status)
	}
	if result.Cursor != pagination.EncodeCursor(next) {
		t.Fatalf("unexpected cursor: %s", result.Cursor)
	}
}
