package promocodes

import (
	"context"
	"errors"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvalidMessage is shown to users for any unusable code.
const InvalidMessage = "invalid or expired promo code"

// Reasons a code fails validation.
const (
	ReasonNotFound  = "not_found"
	ReasonInactive  = "inactive"
	ReasonExpired   = "expired"
	ReasonExhausted = "exhausted"
)

// ErrExhausted is returned by Consume when the usage ceiling was reached concurrently.
var ErrExhausted = errors.New("promo code usage exhausted")

// Validation is the outcome of checking a code for a billing interval.
type Validation struct {
	Valid           bool            `json:"valid"`
	Reason          string          `json:"reason,omitempty"`
	PromoCodeID     uuid.UUID       `json:"promo_code_id,omitempty"`
	Code            string          `json:"code,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DurationMonths  int             `json:"duration_months"`
}

type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

// Service validates and consumes promo codes.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "promo code repo required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, now: now}, nil
}

// Validate checks a user-entered code without side effects.
func (s *Service) Validate(ctx context.Context, code string, interval enums.BillingInterval) (*Validation, error) {
	normalized := normalize(code)
	if normalized == "" {
		return &Validation{Reason: ReasonNotFound}, nil
	}
	if !interval.IsValid() {
		interval = enums.BillingIntervalMonthly
	}
	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promo code")
	}
	return Evaluate(promo, interval, s.now()), nil
}

// Evaluate applies the validity rules to a loaded code.
func Evaluate(promo *models.PromoCode, interval enums.BillingInterval, now time.Time) *Validation {
	if promo == nil {
		return &Validation{Reason: ReasonNotFound}
	}
	out := &Validation{
		PromoCodeID:     promo.ID,
		Code:            promo.Code,
		DiscountPercent: promo.DiscountPercent,
		DurationMonths:  promo.DurationMonths(interval),
	}
	switch {
	case promo.Exhausted():
		out.Reason = ReasonExhausted
	case !promo.IsActive:
		out.Reason = ReasonInactive
	case promo.ExpiresAt != nil && !now.Before(*promo.ExpiresAt):
		out.Reason = ReasonExpired
	default:
		out.Valid = true
	}
	return out
}

// Require validates code and converts an invalid result into a user-facing error.
func (s *Service) Require(ctx context.Context, code string, interval enums.BillingInterval) (*Validation, error) {
	result, err := s.Validate(ctx, code, interval)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, InvalidMessage).
			WithDetails(map[string]any{"reason": result.Reason})
	}
	return result, nil
}

// Consume records one use of the code inside tx.
func (s *Service) Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	ok, err := s.repo.WithTx(tx).IncrementUsage(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExhausted
	}
	return nil
}

// CreateInput carries an admin-issued promo code.
type CreateInput struct {
	Code                  string     `json:"code" validate:"required,min=3,max=32,alphanum"`
	DiscountPercent       float64    `json:"discount_percent" validate:"required,gt=0,lte=100"`
	MaxUses               *int       `json:"max_uses" validate:"omitempty,gt=0"`
	DurationMonthsMonthly int        `json:"duration_months_monthly" validate:"required,gt=0,lte=36"`
	DurationMonthsYearly  int        `json:"duration_months_yearly" validate:"required,gt=0,lte=36"`
	ExpiresAt             *time.Time `json:"expires_at"`
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*models.PromoCode, error) {
	promo := &models.PromoCode{
		Code:                  normalize(input.Code),
		DiscountPercent:       decimal.NewFromFloat(input.DiscountPercent).Round(2),
		MaxUses:               input.MaxUses,
		DurationMonthsMonthly: input.DurationMonthsMonthly,
		DurationMonthsYearly:  input.DurationMonthsYearly,
		IsActive:              true,
		ExpiresAt:             input.ExpiresAt,
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "promo code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create promo code")
	}
	return promo, nil
}

func (s *Service) List(ctx context.Context) ([]models.PromoCode, error) {
	codes, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list promo codes")
	}
	return codes, nil
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update promo code")
	}
	return nil
}
