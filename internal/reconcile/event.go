package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WebhookEvent is the normalized shape of an aggregator callback. CamPay
// delivers these as query parameters on a GET or form fields on a POST, so
// every field arrives as a string and is validated downstream.
type WebhookEvent struct {
	Status            string          `json:"status"`
	Reference         string          `json:"reference"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	AppAmount         decimal.Decimal `json:"app_amount"`
	Currency          string          `json:"currency"`
	Operator          string          `json:"operator"`
	OperatorReference string          `json:"operator_reference"`
	Code              string          `json:"code"`
	PhoneNumber       string          `json:"phone_number"`
	Signature         string          `json:"signature"`
	Endpoint          string          `json:"endpoint"`
	ExternalUser      string          `json:"external_user"`
}

// Envelope wraps a webhook event for transport through the queue.
type Envelope struct {
	EventID    string       `json:"event_id"`
	ReceivedAt time.Time    `json:"received_at"`
	Event      WebhookEvent `json:"event"`
}

// NormalizedPhone strips whitespace and a leading plus so heuristic matching
// compares like with like.
func (e WebhookEvent) NormalizedPhone() string {
	phone := strings.TrimSpace(e.PhoneNumber)
	return strings.TrimPrefix(phone, "+")
}
