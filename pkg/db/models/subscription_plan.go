package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/edukamer/edupay-backend/pkg/enums"
)

// SubscriptionPlan is the purchasable catalog entry. The slug doubles as the
// primary key so payment references stay short.
type SubscriptionPlan struct {
	ID           string           `gorm:"column:id;primaryKey"`
	Name         string           `gorm:"column:name;not null"`
	Description  string           `gorm:"column:description"`
	Status       enums.PlanStatus `gorm:"column:status;type:plan_status;not null;default:'active'"`
	PriceAmount  decimal.Decimal  `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode string           `gorm:"column:currency_code;not null;default:'XAF'"`
	DurationDays int              `gorm:"column:duration_days;not null"`
	Features     pq.StringArray   `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	IsDefault    bool             `gorm:"column:is_default;not null;default:false"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
