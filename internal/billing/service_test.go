package billing

import (
	"context"
	"testing"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedTenantWithSubscription(t *testing.T, db *gorm.DB) (*models.Tenant, *models.Subscription) {
	t.Helper()
	tenant := &models.Tenant{Name: "Studio Wrap", Status: enums.TenantStatusActive}
	require.NoError(t, db.Create(tenant).Error)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &models.Subscription{
		TenantID:             tenant.ID,
		StripeSubscriptionID: "sub_123",
		StripePriceID:        "price_monthly",
		Status:               enums.SubscriptionStatusActive,
		BillingInterval:      enums.BillingIntervalMonthly,
		CurrentPeriodStart:   &start,
		CurrentPeriodEnd:     &end,
	}
	require.NoError(t, NewRepository(db).CreateSubscription(context.Background(), sub))
	return tenant, sub
}

func TestRepositoryFindsSubscriptionByTenantAndStripeID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenant, sub := seedTenantWithSubscription(t, db)

	byTenant, err := repo.FindSubscriptionByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, byTenant)
	assert.Equal(t, sub.ID, byTenant.ID)

	byStripe, err := repo.FindSubscriptionByStripeID(ctx, "sub_123")
	require.NoError(t, err)
	require.NotNil(t, byStripe)
	assert.Equal(t, tenant.ID, byStripe.TenantID)

	missing, err := repo.FindSubscriptionByStripeID(ctx, "sub_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := repo.FindSubscriptionByTenant(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepositoryUpsertPaymentKeepsOneRowPerInvoice(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	_, sub := seedTenantWithSubscription(t, db)

	reason := "card_declined"
	require.NoError(t, repo.UpsertPayment(ctx, &models.SubscriptionPayment{
		SubscriptionID:  sub.ID,
		StripeInvoiceID: "in_1",
		AmountCents:     9900,
		Currency:        "brl",
		Status:          enums.PaymentStatusFailed,
		FailureReason:   &reason,
	}))

	paidAt := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertPayment(ctx, &models.SubscriptionPayment{
		SubscriptionID:  sub.ID,
		StripeInvoiceID: "in_1",
		AmountCents:     9900,
		Currency:        "brl",
		Status:          enums.PaymentStatusSucceeded,
		PaidAt:          &paidAt,
	}))

	payments, err := repo.ListPayments(ctx, sub.ID, 0)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusSucceeded, payments[0].Status)
	assert.Nil(t, payments[0].FailureReason)
}

func TestRepositoryListExpiredFounders(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	_, sub := seedTenantWithSubscription(t, db)

	now := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	sub.IsFounder = true
	sub.FounderExpiresAt = &expired
	require.NoError(t, repo.UpdateSubscription(ctx, sub))

	other := &models.Tenant{Name: "Other", Status: enums.TenantStatusActive}
	require.NoError(t, db.Create(other).Error)
	future := now.Add(24 * time.Hour)
	require.NoError(t, repo.CreateSubscription(ctx, &models.Subscription{
		TenantID:             other.ID,
		StripeSubscriptionID: "sub_future",
		StripePriceID:        "price_founder",
		Status:               enums.SubscriptionStatusActive,
		BillingInterval:      enums.BillingIntervalMonthly,
		IsFounder:            true,
		FounderExpiresAt:     &future,
	}))

	subs, err := repo.ListExpiredFounders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_123", subs[0].StripeSubscriptionID)
}

func TestRepositoryDeleteByTenantRemovesPayments(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenant, sub := seedTenantWithSubscription(t, db)

	require.NoError(t, repo.UpsertPayment(ctx, &models.SubscriptionPayment{
		SubscriptionID:  sub.ID,
		StripeInvoiceID: "in_9",
		Status:          enums.PaymentStatusSucceeded,
	}))
	require.NoError(t, repo.DeleteByTenant(ctx, tenant.ID))

	var count int64
	require.NoError(t, db.Model(&models.SubscriptionPayment{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestServiceOverview(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(db)})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Overview(ctx, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	empty, err := svc.Overview(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, empty.Subscription)
	assert.Empty(t, empty.Payments)

	tenant, _ := seedTenantWithSubscription(t, db)
	overview, err := svc.Overview(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, overview.Subscription)
	assert.Equal(t, "sub_123", overview.Subscription.StripeSubscriptionID)
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error when repo is missing")
	}
}
