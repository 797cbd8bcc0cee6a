package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/edukamer/edupay-backend/internal/plans"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/pagination"
)

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo  Repository
	Plans plans.Repository
}

// Service answers plan-access questions for the rest of the app.
type Service struct {
	repo  Repository
	plans plans.Repository
}

// NewService builds a subscription service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans repo is required")
	}
	return &Service{repo: params.Repo, plans: params.Plans}, nil
}

// CurrentPlan describes the caller's plan access right now.
type CurrentPlan struct {
	Subscription *models.Subscription     `json:"subscription,omitempty"`
	Plan         *models.SubscriptionPlan `json:"plan,omitempty"`
	Status       enums.SubscriptionStatus `json:"status"`
	HasAccess    bool                     `json:"has_access"`
}

// Current resolves the user's active subscription and its plan. A user with
// no live subscription still gets a well-formed answer with HasAccess false.
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*CurrentPlan, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	sub, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find active subscription")
	}
	if sub == nil {
		return &CurrentPlan{Status: enums.SubscriptionStatusExpired}, nil
	}

	now := time.Now().UTC()
	status := sub.Status(now)

	plan, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find plan")
	}

	return &CurrentPlan{
		Subscription: sub,
		Plan:         plan,
		Status:       status,
		HasAccess:    status == enums.SubscriptionStatusActive,
	}, nil
}

// HasActive reports whether the user holds a subscription that is still
// inside its paid window.
func (s *Service) HasActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return false, err
	}
	return current.HasAccess, nil
}

// HistoryParams configures history pagination.
type HistoryParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// HistoryEntry pairs a past subscription with its derived status.
type HistoryEntry struct {
	Subscription models.Subscription      `json:"subscription"`
	Status       enums.SubscriptionStatus `json:"status"`
}

// HistoryResult wraps returned entries and the cursor for the next page.
type HistoryResult struct {
	Items  []HistoryEntry `json:"items"`
	Cursor string         `json:"cursor"`
}

// History lists the user's subscriptions newest first.
func (s *Service) History(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := ListQuery{UserID: params.UserID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	subs, next, err := s.repo.ListByUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	now := time.Now().UTC()
	items := make([]HistoryEntry, 0, len(subs))
	for _, sub := range subs {
		items = append(items, HistoryEntry{Subscription: sub, Status: sub.Status(now)})
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &HistoryResult{Items: items, Cursor: cursor}, nil
}
