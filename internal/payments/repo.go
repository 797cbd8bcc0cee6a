package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edukamer/edupay-backend/pkg/db/models"
	"github.com/edukamer/edupay-backend/pkg/enums"
)

// Repository handles transaction and payment reference persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	FindTransaction(ctx context.Context, reference string) (*models.Transaction, error)
	FindPendingByPhoneAmount(ctx context.Context, phone string, amount decimal.Decimal) (*models.Transaction, error)
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	CreatePaymentReference(ctx context.Context, ref *models.PaymentReference) error
	FindPaymentReference(ctx context.Context, reference string) (*models.PaymentReference, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) FindTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// FindPendingByPhoneAmount is the heuristic fallback for callbacks whose
// reference matches nothing. Most recent pending collection wins; ambiguity
// is tolerable because the amount and payer phone must both line up.
func (r *repository) FindPendingByPhoneAmount(ctx context.Context, phone string, amount decimal.Decimal) (*models.Transaction, error) {
	if phone == "" {
		return nil, nil
	}
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("phone_number = ? AND amount = ? AND status = ?", phone, amount, enums.TransactionStatusPending).
		Order("created_at DESC").
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("status <> ? AND abandoned_at IS NULL AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			enums.TransactionStatusSuccessful, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) CreatePaymentReference(ctx context.Context, ref *models.PaymentReference) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *repository) FindPaymentReference(ctx context.Context, reference string) (*models.PaymentReference, error) {
	if reference == "" {
		return nil, nil
	}
	var ref models.PaymentReference
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&ref).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&payment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}
