package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/pkg/enums"
)

// PaymentReference is the durable correlation record keyed by the reference
// sent to the aggregator. Written once at issuance, read-only afterwards.
type PaymentReference struct {
	Reference   string                `gorm:"column:reference;primaryKey"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID      string                `gorm:"column:plan_id;not null"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	PhoneNumber string                `gorm:"column:phone_number;not null"`
	Provider    enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null;default:'campay'"`
	UID         uuid.UUID             `gorm:"column:uid;type:uuid;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
