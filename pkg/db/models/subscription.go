package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/edukamer/edupay-backend/pkg/enums"
)

// Subscription grants plan access for a window of time. TransactionRef is
// unique so a replayed webhook can never mint a second subscription, and a
// partial unique index on (user_id) WHERE is_active keeps a user from holding
// two active subscriptions at once (see migrations).
type Subscription struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID         string    `gorm:"column:plan_id;not null"`
	TransactionRef string    `gorm:"column:transaction_ref;not null;unique"`
	StartDate      time.Time `gorm:"column:start_date;not null"`
	EndDate        time.Time `gorm:"column:end_date;not null"`
	AutoRenew      bool      `gorm:"column:auto_renew;not null;default:false"`
	IsActive       bool      `gorm:"column:is_active;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Activate flips the subscription on and recomputes its window from now.
func (s *Subscription) Activate(now time.Time, durationDays int) {
	s.StartDate = now
	s.EndDate = now.AddDate(0, 0, durationDays)
	s.IsActive = true
}

// Status derives the lifecycle state from the activation flag and end date.
func (s *Subscription) Status(now time.Time) enums.SubscriptionStatus {
	if !s.IsActive {
		return enums.SubscriptionStatusPending
	}
	if now.After(s.EndDate) {
		return enums.SubscriptionStatusExpired
	}
	return enums.SubscriptionStatusActive
}
