package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/edukamer/edupay-backend/api/responses"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

// PlanService describes the catalog reads used by the HTTP layer.
type PlanService interface {
	ListActive(ctx context.Context) ([]models.SubscriptionPlan, error)
}

type planResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	PriceAmount  string   `json:"price_amount"`
	CurrencyCode string   `json:"currency_code"`
	DurationDays int      `json:"duration_days"`
	Features     []string `json:"features"`
	IsDefault    bool     `json:"is_default"`
	CreatedAt    string   `json:"created_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

// PlansList returns the purchasable plan catalog. Public: students see
// pricing before they sign in.
func PlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func plansToResponse(plans []models.SubscriptionPlan) []planResponse {
	result := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		result = append(result, planToResponse(plan))
	}
	return result
}

func planToResponse(plan models.SubscriptionPlan) planResponse {
	features := make([]string, len(plan.Features))
	copy(features, plan.Features)

	return planResponse{
		ID:           plan.ID,
		Name:         plan.Name,
		Description:  plan.Description,
		PriceAmount:  plan.PriceAmount.StringFixed(0),
		CurrencyCode: plan.CurrencyCode,
		DurationDays: plan.DurationDays,
		Features:     features,
		IsDefault:    plan.IsDefault,
		CreatedAt:    plan.CreatedAt.UTC().Format(time.RFC3339),
	}
}
