package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/api/middleware"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/subscriptions"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/types"
)

type fakeLinkService struct {
	params payments.IssueLinkParams
	calls  int
	link   *payments.IssuedLink
	err    error
}

func (f *fakeLinkService) IssuePaymentLink(_ context.Context, params payments.IssueLinkParams) (*payments.IssuedLink, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

type fakeSubscriptionReadService struct {
	current       *subscriptions.CurrentPlan
	history       *subscriptions.HistoryResult
	historyParams subscriptions.HistoryParams
	err           error
}

func (f *fakeSubscriptionReadService) Current(_ context.Context, _ uuid.UUID) (*subscriptions.CurrentPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeSubscriptionReadService) History(_ context.Context, params subscriptions.HistoryParams) (*subscriptions.HistoryResult, error) {
	f.historyParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func authedRequest(t *testing.T, userID uuid.UUID, method, target, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	}
	return req
}

func withPlanID(req *http.Request, planID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("planID", planID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestPaymentLinkCreate_IssuesLink(t *testing.T) {
	userID := uuid.New()
	service := &fakeLinkService{
		link: &payments.IssuedLink{
			Reference: "ppremium0001",
			Link:      "https://pay.example/abc",
			Amount:    decimal.NewFromInt(2500),
			Currency:  "XAF",
			PlanID:    "premium",
		},
	}

	req := withPlanID(authedRequest(t, userID, http.MethodPost, "/api/v1/plans/premium/payment-link", `{"phone_number":"237670000001"}`), "premium")
	rec := httptest.NewRecorder()
	PaymentLinkCreate(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.params.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, service.params.UserID)
	}
	if service.params.PlanID != "premium" {
		t.Fatalf("expected plan premium, got %q", service.params.PlanID)
	}
	if service.params.PhoneNumber != "237670000001" {
		t.Fatalf("expected phone forwarded, got %q", service.params.PhoneNumber)
	}

	var envelope struct {
		Data payments.IssuedLink `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Link != "https://pay.example/abc" {
		t.Fatalf("unexpected link %q", envelope.Data.Link)
	}
	if envelope.Data.Reference != "ppremium0001" {
		t.Fatalf("unexpected reference %q", envelope.Data.Reference)
	}
}

func TestPaymentLinkCreate_RequiresAuth(t *testing.T) {
	service := &fakeLinkService{}

	req := withPlanID(authedRequest(t, uuid.Nil, http.MethodPost, "/api/v1/plans/premium/payment-link", `{}`), "premium")
	rec := httptest.NewRecorder()
	PaymentLinkCreate(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked without credentials")
	}
}

func TestPaymentLinkCreate_RejectsShortPhone(t *testing.T) {
	service := &fakeLinkService{}

	req := withPlanID(authedRequest(t, uuid.New(), http.MethodPost, "/api/v1/plans/premium/payment-link", `{"phone_number":"1234"}`), "premium")
	rec := httptest.NewRecorder()
	PaymentLinkCreate(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %s", code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid payload")
	}
}

func TestPaymentLinkCreate_MapsServiceErrors(t *testing.T) {
	service := &fakeLinkService{err: pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")}

	req := withPlanID(authedRequest(t, uuid.New(), http.MethodPost, "/api/v1/plans/ghost/payment-link", `{"phone_number":"237670000001"}`), "ghost")
	rec := httptest.NewRecorder()
	PaymentLinkCreate(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found code, got %s", code)
	}
}

func TestCurrentPlan_ReturnsAccessState(t *testing.T) {
	userID := uuid.New()
	service := &fakeSubscriptionReadService{
		current: &subscriptions.CurrentPlan{
			Subscription: &models.Subscription{ID: uuid.New(), UserID: userID},
			Status:       enums.SubscriptionStatusActive,
			HasAccess:    true,
		},
	}

	req := authedRequest(t, userID, http.MethodGet, "/api/v1/subscriptions/current", "")
	rec := httptest.NewRecorder()
	CurrentPlan(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data subscriptions.CurrentPlan `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.HasAccess {
		t.Fatalf("expected has_access true")
	}
	if envelope.Data.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %s", envelope.Data.Status)
	}
}

func TestCurrentPlan_RequiresAuth(t *testing.T) {
	req := authedRequest(t, uuid.Nil, http.MethodGet, "/api/v1/subscriptions/current", "")
	rec := httptest.NewRecorder()
	CurrentPlan(&fakeSubscriptionReadService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubscriptionHistory_ForwardsPagination(t *testing.T) {
	userID := uuid.New()
	service := &fakeSubscriptionReadService{
		history: &subscriptions.HistoryResult{
			Items:  []subscriptions.HistoryEntry{{Status: enums.SubscriptionStatusExpired}},
			Cursor: "next-cursor",
		},
	}

	req := authedRequest(t, userID, http.MethodGet, "/api/v1/subscriptions/history?limit=5&cursor=abc123", "")
	rec := httptest.NewRecorder()
	SubscriptionHistory(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.historyParams.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, service.historyParams.UserID)
	}
	if service.historyParams.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", service.historyParams.Limit)
	}
	if service.historyParams.Cursor != "abc123" {
		t.Fatalf("expected cursor forwarded, got %q", service.historyParams.Cursor)
	}

	var envelope struct {
		Data subscriptions.HistoryResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Cursor != "next-cursor" {
		t.Fatalf("expected cursor in response, got %q", envelope.Data.Cursor)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected one entry, got %d", len(envelope.Data.Items))
	}
}

func TestSubscriptionHistory_RejectsOutOfRangeLimit(t *testing.T) {
	req := authedRequest(t, uuid.New(), http.MethodGet, "/api/v1/subscriptions/history?limit=0", "")
	rec := httptest.NewRecorder()
	SubscriptionHistory(&fakeSubscriptionReadService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %s", code)
	}
}
