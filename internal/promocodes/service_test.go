package promocodes

import (
	"context"
	"testing"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func newService(t *testing.T) (*Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(ServiceParams{Repo: repo, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return svc, repo
}

func seed(t *testing.T, repo Repository, promo *models.PromoCode) *models.PromoCode {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), promo))
	return promo
}

func TestValidateIsCaseInsensitiveAndPicksIntervalDuration(t *testing.T) {
	svc, repo := newService(t)
	seed(t, repo, &models.PromoCode{
		Code:                  "launch20",
		DiscountPercent:       decimal.NewFromInt(20),
		DurationMonthsMonthly: 3,
		DurationMonthsYearly:  12,
		IsActive:              true,
	})

	monthly, err := svc.Validate(context.Background(), "  Launch20 ", enums.BillingIntervalMonthly)
	require.NoError(t, err)
	assert.True(t, monthly.Valid)
	assert.Equal(t, "LAUNCH20", monthly.Code)
	assert.Equal(t, 3, monthly.DurationMonths)

	yearly, err := svc.Validate(context.Background(), "launch20", enums.BillingIntervalYearly)
	require.NoError(t, err)
	assert.Equal(t, 12, yearly.DurationMonths)
}

func TestEvaluateRules(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Hour)

	cases := []struct {
		name   string
		promo  *models.PromoCode
		valid  bool
		reason string
	}{
		{name: "missing", promo: nil, reason: ReasonNotFound},
		{name: "inactive", promo: &models.PromoCode{IsActive: false}, reason: ReasonInactive},
		{name: "expired", promo: &models.PromoCode{IsActive: true, ExpiresAt: &past}, reason: ReasonExpired},
		{name: "expires exactly now", promo: &models.PromoCode{IsActive: true, ExpiresAt: &fixedNow}, reason: ReasonExpired},
		{name: "exhausted beats everything", promo: &models.PromoCode{IsActive: true, ExpiresAt: &future, MaxUses: intPtr(5), UsedCount: 5}, reason: ReasonExhausted},
		{name: "exhausted even when inactive", promo: &models.PromoCode{IsActive: false, MaxUses: intPtr(1), UsedCount: 1}, reason: ReasonExhausted},
		{name: "unlimited", promo: &models.PromoCode{IsActive: true, UsedCount: 999}, valid: true},
		{name: "below ceiling", promo: &models.PromoCode{IsActive: true, ExpiresAt: &future, MaxUses: intPtr(5), UsedCount: 4}, valid: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.promo, enums.BillingIntervalMonthly, fixedNow)
			assert.Equal(t, tc.valid, got.Valid)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestValidateHasNoSideEffects(t *testing.T) {
	svc, repo := newService(t)
	promo := seed(t, repo, &models.PromoCode{
		Code:                  "ONCE",
		DiscountPercent:       decimal.NewFromInt(10),
		MaxUses:               intPtr(1),
		DurationMonthsMonthly: 1,
		DurationMonthsYearly:  1,
		IsActive:              true,
	})

	for i := 0; i < 3; i++ {
		res, err := svc.Validate(context.Background(), "once", enums.BillingIntervalMonthly)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	}

	reloaded, err := repo.FindByID(context.Background(), promo.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.UsedCount)
}

func TestConsumeStopsAtCeiling(t *testing.T) {
	svc, repo := newService(t)
	promo := seed(t, repo, &models.PromoCode{
		Code:                  "TWICE",
		DiscountPercent:       decimal.NewFromInt(15),
		MaxUses:               intPtr(2),
		DurationMonthsMonthly: 1,
		DurationMonthsYearly:  1,
		IsActive:              true,
	})
	ctx := context.Background()

	require.NoError(t, svc.Consume(ctx, nil, promo.ID))
	require.NoError(t, svc.Consume(ctx, nil, promo.ID))
	assert.ErrorIs(t, svc.Consume(ctx, nil, promo.ID), ErrExhausted)

	res, err := svc.Validate(ctx, "twice", enums.BillingIntervalMonthly)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonExhausted, res.Reason)
}

func TestRequireReturnsUserFacingError(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Require(context.Background(), "nope", enums.BillingIntervalMonthly)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, InvalidMessage, typed.Message())
}

func TestCreateNormalisesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	input := CreateInput{
		Code:                  "blackfriday",
		DiscountPercent:       30,
		DurationMonthsMonthly: 2,
		DurationMonthsYearly:  12,
	}

	promo, err := svc.Create(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "BLACKFRIDAY", promo.Code)
	assert.True(t, promo.IsActive)
	assert.True(t, promo.DiscountPercent.Equal(decimal.NewFromInt(30)))

	_, err = svc.Create(ctx, input)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestSetActive(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	promo := seed(t, repo, &models.PromoCode{
		Code:                  "PAUSE",
		DiscountPercent:       decimal.NewFromInt(5),
		DurationMonthsMonthly: 1,
		DurationMonthsYearly:  1,
		IsActive:              true,
	})

	require.NoError(t, svc.SetActive(ctx, promo.ID, false))
	res, err := svc.Validate(ctx, "pause", enums.BillingIntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, ReasonInactive, res.Reason)

	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(svc.SetActive(ctx, uuid.New(), true)))
}
