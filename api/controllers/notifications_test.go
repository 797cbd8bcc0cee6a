package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
)

type fakeNotificationService struct {
	listParams notifications.ListParams
	listResult *notifications.ListResult
	listErr    error

	markedUser   uuid.UUID
	markedID     uuid.UUID
	markReadErr  error
	markAllCount int64
}

func (f *fakeNotificationService) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	f.listParams = params
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResult, nil
}

func (f *fakeNotificationService) MarkRead(_ context.Context, userID, notificationID uuid.UUID) error {
	f.markedUser = userID
	f.markedID = notificationID
	return f.markReadErr
}

func (f *fakeNotificationService) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	f.markedUser = userID
	return f.markAllCount, nil
}

func (f *fakeNotificationService) Notify(_ context.Context, _ uuid.UUID, _ enums.NotificationKind, _, _ string) error {
	return nil
}

func withNotificationID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("notificationID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListNotifications_ParsesQuery(t *testing.T) {
	userID := uuid.New()
	service := &fakeNotificationService{
		listResult: &notifications.ListResult{
			Items: []models.Notification{
				{ID: uuid.New(), UserID: userID, Kind: enums.NotificationKindSubscriptionActivated, Title: "Subscription active"},
			},
			Cursor: "next",
		},
	}

	req := authedRequest(t, userID, http.MethodGet, "/api/v1/notifications?limit=10&cursor=abc&unreadOnly=true", "")
	rec := httptest.NewRecorder()
	ListNotifications(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.listParams.UserID != userID {
		t.Fatalf("expected user scoped list, got %s", service.listParams.UserID)
	}
	if service.listParams.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", service.listParams.Limit)
	}
	if service.listParams.Cursor != "abc" {
		t.Fatalf("expected cursor forwarded, got %q", service.listParams.Cursor)
	}
	if !service.listParams.UnreadOnly {
		t.Fatalf("expected unreadOnly true")
	}

	var envelope struct {
		Data notifications.ListResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Cursor != "next" {
		t.Fatalf("unexpected list payload: %+v", envelope.Data)
	}
}

func TestListNotifications_RejectsBadLimit(t *testing.T) {
	req := authedRequest(t, uuid.New(), http.MethodGet, "/api/v1/notifications?limit=-3", "")
	rec := httptest.NewRecorder()
	ListNotifications(&fakeNotificationService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListNotifications_RequiresAuth(t *testing.T) {
	req := authedRequest(t, uuid.Nil, http.MethodGet, "/api/v1/notifications", "")
	rec := httptest.NewRecorder()
	ListNotifications(&fakeNotificationService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMarkNotificationRead_ForwardsIDs(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	service := &fakeNotificationService{}

	req := withNotificationID(authedRequest(t, userID, http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", ""), notificationID.String())
	rec := httptest.NewRecorder()
	MarkNotificationRead(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.markedUser != userID || service.markedID != notificationID {
		t.Fatalf("expected ids forwarded, got user=%s id=%s", service.markedUser, service.markedID)
	}
}

func TestMarkNotificationRead_RejectsMalformedID(t *testing.T) {
	service := &fakeNotificationService{}

	req := withNotificationID(authedRequest(t, uuid.New(), http.MethodPost, "/api/v1/notifications/not-a-uuid/read", ""), "not-a-uuid")
	rec := httptest.NewRecorder()
	MarkNotificationRead(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if service.markedID != uuid.Nil {
		t.Fatalf("service should not be invoked on malformed id")
	}
}

func TestMarkNotificationRead_MapsNotFound(t *testing.T) {
	service := &fakeNotificationService{markReadErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}
	notificationID := uuid.New()

	req := withNotificationID(authedRequest(t, uuid.New(), http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", ""), notificationID.String())
	rec := httptest.NewRecorder()
	MarkNotificationRead(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMarkAllNotificationsRead_ReportsCount(t *testing.T) {
	userID := uuid.New()
	service := &fakeNotificationService{markAllCount: 4}

	req := authedRequest(t, userID, http.MethodPost, "/api/v1/notifications/read-all", "")
	rec := httptest.NewRecorder()
	MarkAllNotificationsRead(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.markedUser != userID {
		t.Fatalf("expected user forwarded, got %s", service.markedUser)
	}

	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["updated"] != 4 {
		t.Fatalf("expected 4 updated, got %d", envelope.Data["updated"])
	}
}
