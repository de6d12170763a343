package billing

import (
	"context"
	"errors"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles subscription and payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	ListExpiredFounders(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	FindPaymentByInvoice(ctx context.Context, invoiceID string) (*models.SubscriptionPayment, error)
	UpsertPayment(ctx context.Context, payment *models.SubscriptionPayment) error
	ListPayments(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.SubscriptionPayment, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListExpiredFounders returns active founder subscriptions whose price lock ended at or before now.
func (r *repository) ListExpiredFounders(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("is_founder = ?", true).
		Where("founder_expires_at IS NOT NULL AND founder_expires_at <= ?", now).
		Where("status = ?", enums.SubscriptionStatusActive).
		Order("founder_expires_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindPaymentByInvoice(ctx context.Context, invoiceID string) (*models.SubscriptionPayment, error) {
	if invoiceID == "" {
		return nil, nil
	}
	var payment models.SubscriptionPayment
	if err := r.db.WithContext(ctx).
		Where("stripe_invoice_id = ?", invoiceID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// UpsertPayment inserts the payment or updates the row sharing its invoice id.
func (r *repository) UpsertPayment(ctx context.Context, payment *models.SubscriptionPayment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_cents",
				"currency",
				"status",
				"paid_at",
				"failure_reason",
				"updated_at",
			}),
		}).
		Create(payment).Error
}

func (r *repository) ListPayments(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.SubscriptionPayment, error) {
	if limit <= 0 {
		limit = 24
	}
	var payments []models.SubscriptionPayment
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// DeleteByTenant removes the tenant's payments and subscription.
func (r *repository) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	sub := db.Model(&models.Subscription{}).Select("id").Where("tenant_id = ?", tenantID)
	if err := db.Where("subscription_id IN (?)", sub).Delete(&models.SubscriptionPayment{}).Error; err != nil {
		return err
	}
	return db.Where("tenant_id = ?", tenantID).Delete(&models.Subscription{}).Error
}
