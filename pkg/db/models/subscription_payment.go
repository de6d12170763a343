package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// SubscriptionPayment records one invoice outcome. Rows are keyed by the Stripe invoice id.
type SubscriptionPayment struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID  uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	StripeInvoiceID string              `gorm:"column:stripe_invoice_id;not null;unique"`
	AmountCents     int64               `gorm:"column:amount_cents;not null;default:0"`
	Currency        string              `gorm:"column:currency;not null;default:'brl'"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *SubscriptionPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
