package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// Subscription mirrors the Stripe subscription of a tenant. A tenant has at most one row.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID             uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;unique"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	StripePriceID        string                   `gorm:"column:stripe_price_id;not null"`
	StripeItemID         *string                  `gorm:"column:stripe_item_id"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	BillingInterval      enums.BillingInterval    `gorm:"column:billing_interval;type:billing_interval;not null;default:'monthly'"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	IsFounder            bool                     `gorm:"column:is_founder;not null;default:false"`
	FounderExpiresAt     *time.Time               `gorm:"column:founder_expires_at"`
	PromoCodeID          *uuid.UUID               `gorm:"column:promo_code_id;type:uuid"`
	PromoMonthsRemaining int                      `gorm:"column:promo_months_remaining;not null;default:0"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
