package webhooks

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/api/responses"
	"github.com/edukamer/edupay-backend/internal/reconcile"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

type webhookEnqueuer interface {
	Enqueue(ctx context.Context, event reconcile.WebhookEvent) (string, error)
}

// CamPayWebhook accepts aggregator callbacks and hands them to the async
// reconciliation pipeline. CamPay calls back with query parameters on GET;
// POST with form fields is accepted too. The endpoint is unauthenticated by
// contract and performs no shape validation: whatever arrives is enqueued
// as-is and the reconciler decides what to do with it, so a 200 here only
// means "received", never "processed".
func CamPayWebhook(enqueuer webhookEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if enqueuer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook enqueuer unavailable"))
			return
		}

		values, err := webhookValues(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		taskID, err := enqueuer.Enqueue(ctx, eventFromValues(values))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithTransactionRef(ctx, values.Get("external_reference"))
			logg.Info(logCtx, "webhook received")
		}
		responses.WriteSuccess(w, map[string]string{"task_id": taskID})
	}
}

func webhookValues(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
		}
		return r.Form, nil
	}
	return r.URL.Query(), nil
}

// eventFromValues collects callback parameters into an event without
// validating them. Unparseable amounts stay zero; missing fields stay blank.
// The reconciler parks anything it cannot act on as an orphan.
func eventFromValues(values url.Values) reconcile.WebhookEvent {
	event := reconcile.WebhookEvent{
		Status:            strings.TrimSpace(values.Get("status")),
		Reference:         strings.TrimSpace(values.Get("reference")),
		ExternalReference: strings.TrimSpace(values.Get("external_reference")),
		Currency:          strings.TrimSpace(values.Get("currency")),
		Operator:          strings.TrimSpace(values.Get("operator")),
		OperatorReference: strings.TrimSpace(values.Get("operator_reference")),
		Code:              strings.TrimSpace(values.Get("code")),
		PhoneNumber:       strings.TrimSpace(values.Get("phone_number")),
		Signature:         strings.TrimSpace(values.Get("signature")),
		Endpoint:          strings.TrimSpace(values.Get("endpoint")),
		ExternalUser:      strings.TrimSpace(values.Get("external_user")),
	}

	if raw := strings.TrimSpace(values.Get("amount")); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			event.Amount = amount
		}
	}
	if raw := strings.TrimSpace(values.Get("app_amount")); raw != "" {
		if appAmount, err := decimal.NewFromString(raw); err == nil {
			event.AppAmount = appAmount
		}
	}

	return event
}
