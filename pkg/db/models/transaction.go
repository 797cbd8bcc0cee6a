package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/pkg/enums"
)

// Transaction mirrors an aggregator collection. The primary key is the short
// reference generated at link-issuance time and is immutable afterwards.
type Transaction struct {
	Reference         string                  `gorm:"column:reference;primaryKey"`
	Status            enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'PENDING'"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	AppAmount         decimal.Decimal         `gorm:"column:app_amount;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;not null;default:'XAF'"`
	Operator          *enums.Operator         `gorm:"column:operator;type:operator"`
	Endpoint          string                  `gorm:"column:endpoint;not null;default:'collect'"`
	Provider          enums.PaymentProvider   `gorm:"column:provider;type:payment_provider;not null;default:'campay'"`
	Code              string                  `gorm:"column:code"`
	OperatorReference string                  `gorm:"column:operator_reference"`
	ExternalReference string                  `gorm:"column:external_reference;index"`
	PhoneNumber       string                  `gorm:"column:phone_number;not null;index"`
	Signature         string                  `gorm:"column:signature"`
	UserID            uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID            string                  `gorm:"column:plan_id;not null"`

	// Sweeper bookkeeping: failed collections are retried on an exponential
	// backoff until the attempt cap marks them abandoned.
	RetryCount  int        `gorm:"column:retry_count;not null;default:0"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	AbandonedAt *time.Time `gorm:"column:abandoned_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
