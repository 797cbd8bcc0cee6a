package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edukamer/edupay-backend/api/middleware"
	"github.com/edukamer/edupay-backend/api/responses"
	"github.com/edukamer/edupay-backend/api/validators"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

// PaymentLinkService describes the link issuance entrypoint.
type PaymentLinkService interface {
	IssuePaymentLink(ctx context.Context, params payments.IssueLinkParams) (*payments.IssuedLink, error)
}

// SubscriptionReadService describes plan access reads for the HTTP layer.
type SubscriptionReadService interface {
	Current(ctx context.Context, userID uuid.UUID) (*subscriptions.CurrentPlan, error)
	History(ctx context.Context, params subscriptions.HistoryParams) (*subscriptions.HistoryResult, error)
}

type paymentLinkRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=12,max=12"`
	RedirectURL string `json:"redirect_url" validate:"omitempty,url"`
}

// PaymentLinkCreate mints a hosted payment page for the requested plan.
func PaymentLinkCreate(svc PaymentLinkService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := authedUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planID"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		var payload paymentLinkRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		link, err := svc.IssuePaymentLink(ctx, payments.IssueLinkParams{
			UserID:      userID,
			PlanID:      planID,
			PhoneNumber: strings.TrimSpace(payload.PhoneNumber),
			RedirectURL: strings.TrimSpace(payload.RedirectURL),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// CurrentPlan reports the caller's live subscription, if any.
func CurrentPlan(svc SubscriptionReadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		userID, err := authedUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		current, err := svc.Current(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

// SubscriptionHistory lists the caller's past subscriptions, newest first.
func SubscriptionHistory(svc SubscriptionReadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		userID, err := authedUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		history, err := svc.History(ctx, subscriptions.HistoryParams{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

func authedUserID(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
