package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// Tenant is the shop account that owns users, a subscription and its payments.
type Tenant struct {
	ID               uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string             `gorm:"column:name;not null"`
	Status           enums.TenantStatus `gorm:"column:status;type:tenant_status;not null;default:'TRIAL'"`
	TrialEndsAt      *time.Time         `gorm:"column:trial_ends_at"`
	IsFoundingMember bool               `gorm:"column:is_founding_member;not null;default:false"`
	StripeCustomerID *string            `gorm:"column:stripe_customer_id;unique"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
