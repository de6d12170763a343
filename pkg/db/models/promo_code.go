package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// PromoCode is an admin-issued discount. Codes are stored upper case.
type PromoCode struct {
	ID                    uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code                  string          `gorm:"column:code;not null;unique"`
	DiscountPercent       decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	MaxUses               *int            `gorm:"column:max_uses"`
	UsedCount             int             `gorm:"column:used_count;not null;default:0"`
	DurationMonthsMonthly int             `gorm:"column:duration_months_monthly;not null"`
	DurationMonthsYearly  int             `gorm:"column:duration_months_yearly;not null"`
	IsActive              bool            `gorm:"column:is_active;not null"`
	ExpiresAt             *time.Time      `gorm:"column:expires_at"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	return nil
}

// DurationMonths returns the number of discounted billing months for the interval.
func (p PromoCode) DurationMonths(interval enums.BillingInterval) int {
	if interval == enums.BillingIntervalYearly {
		return p.DurationMonthsYearly
	}
	return p.DurationMonthsMonthly
}

// Exhausted reports whether the usage ceiling has been reached.
func (p PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.UsedCount >= *p.MaxUses
}
