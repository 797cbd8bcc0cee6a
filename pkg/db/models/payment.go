package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/pkg/enums"
)

// Payment records the provider-side settlement detail for a subscription.
// One-to-one: the unique subscription_id guarantees at most one payment per
// subscription.
type Payment struct {
	ID                uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID    uuid.UUID             `gorm:"column:subscription_id;type:uuid;not null;unique"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	PhoneNumber       string                `gorm:"column:phone_number;not null"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null;default:'campay'"`
	Operator          *enums.Operator       `gorm:"column:operator;type:operator"`
	OperatorReference string                `gorm:"column:operator_reference"`
	Code              string                `gorm:"column:code"`
	Signature         string                `gorm:"column:signature"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}
