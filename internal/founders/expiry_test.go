package founders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubPriceChanger struct {
	calls  []payments.PriceChangeParams
	failOn string
}

func (s *stubPriceChanger) UpdateSubscriptionPrice(_ context.Context, params payments.PriceChangeParams) (*payments.Subscription, error) {
	s.calls = append(s.calls, params)
	if params.SubscriptionID == s.failOn {
		return nil, errors.New("stripe down")
	}
	return &payments.Subscription{ID: params.SubscriptionID, PriceID: params.PriceID}, nil
}

type recordingNotifier struct {
	tenants []uuid.UUID
}

func (r *recordingNotifier) DispatchTenant(_ context.Context, tenantID uuid.UUID) {
	r.tenants = append(r.tenants, tenantID)
}

var expiryNow = time.Date(2027, 2, 1, 9, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T, conn *gorm.DB, provider *stubPriceChanger, notifier *recordingNotifier) *ExpirySweeper {
	t.Helper()
	alloc := newAllocator(t, conn, DefaultMaxSlots)
	sweeper, err := NewExpirySweeper(ExpirySweeperParams{
		Allocator:         alloc,
		BillingRepo:       billing.NewRepository(conn),
		TenantRepo:        tenants.NewRepository(conn),
		Provider:          provider,
		Prices:            payments.PriceBook{Monthly: "price_m", Yearly: "price_y", FounderMonthly: "price_fm", FounderYearly: "price_fy"},
		TransactionRunner: db.FromConn(conn),
		Identity:          notifier,
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:               func() time.Time { return expiryNow },
	})
	require.NoError(t, err)
	return sweeper
}

func seedFounderSubscription(t *testing.T, conn *gorm.DB, stripeID string, interval enums.BillingInterval, expires time.Time) *models.Subscription {
	t.Helper()
	tenant := &models.Tenant{Name: stripeID, Status: enums.TenantStatusActive, IsFoundingMember: true}
	require.NoError(t, conn.Create(tenant).Error)
	item := "si_" + stripeID
	sub := &models.Subscription{
		TenantID:             tenant.ID,
		StripeSubscriptionID: stripeID,
		StripePriceID:        "price_f",
		StripeItemID:         &item,
		Status:               enums.SubscriptionStatusActive,
		BillingInterval:      interval,
		IsFounder:            true,
		FounderExpiresAt:     &expires,
	}
	require.NoError(t, conn.Create(sub).Error)
	require.NoError(t, conn.Model(&models.FounderSlot{}).
		Where("id = ?", models.FounderSlotCounterID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error)
	return sub
}

func usedCount(t *testing.T, conn *gorm.DB) int {
	t.Helper()
	var row models.FounderSlot
	require.NoError(t, conn.First(&row, models.FounderSlotCounterID).Error)
	return row.UsedCount
}

func TestSweepMigratesExpiredFoundersToStandardPrice(t *testing.T) {
	conn := dbtest.Open(t)
	provider := &stubPriceChanger{}
	notifier := &recordingNotifier{}
	sweeper := newSweeper(t, conn, provider, notifier)

	expired := seedFounderSubscription(t, conn, "sub_old", enums.BillingIntervalYearly, expiryNow.Add(-time.Hour))
	current := seedFounderSubscription(t, conn, "sub_new", enums.BillingIntervalMonthly, expiryNow.AddDate(0, 3, 0))
	require.Equal(t, 2, usedCount(t, conn))

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpiryJobName, report.Job)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Migrated)
	assert.Empty(t, report.Failures)

	require.Len(t, provider.calls, 1)
	assert.Equal(t, "price_y", provider.calls[0].PriceID)
	assert.Equal(t, "si_sub_old", provider.calls[0].ItemID)

	var migrated models.Subscription
	require.NoError(t, conn.First(&migrated, "id = ?", expired.ID).Error)
	assert.False(t, migrated.IsFounder)
	assert.Nil(t, migrated.FounderExpiresAt)
	assert.Equal(t, "price_y", migrated.StripePriceID)

	var tenant models.Tenant
	require.NoError(t, conn.First(&tenant, "id = ?", expired.TenantID).Error)
	assert.False(t, tenant.IsFoundingMember)

	var untouched models.Subscription
	require.NoError(t, conn.First(&untouched, "id = ?", current.ID).Error)
	assert.True(t, untouched.IsFounder)

	assert.Equal(t, 1, usedCount(t, conn))
	assert.Equal(t, []uuid.UUID{expired.TenantID}, notifier.tenants)
}

func TestSweepIsolatesProviderFailures(t *testing.T) {
	conn := dbtest.Open(t)
	provider := &stubPriceChanger{failOn: "sub_broken"}
	notifier := &recordingNotifier{}
	sweeper := newSweeper(t, conn, provider, notifier)

	broken := seedFounderSubscription(t, conn, "sub_broken", enums.BillingIntervalMonthly, expiryNow.Add(-48*time.Hour))
	healthy := seedFounderSubscription(t, conn, "sub_ok", enums.BillingIntervalMonthly, expiryNow.Add(-time.Hour))

	report, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Migrated)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], broken.ID.String())

	var stillFounder models.Subscription
	require.NoError(t, conn.First(&stillFounder, "id = ?", broken.ID).Error)
	assert.True(t, stillFounder.IsFounder)

	var migrated models.Subscription
	require.NoError(t, conn.First(&migrated, "id = ?", healthy.ID).Error)
	assert.False(t, migrated.IsFounder)
	assert.Equal(t, "price_m", migrated.StripePriceID)
	assert.Equal(t, 1, usedCount(t, conn))
}

func TestSweepSkipsFoundersThatAreNotActive(t *testing.T) {
	conn := dbtest.Open(t)
	provider := &stubPriceChanger{}
	notifier := &recordingNotifier{}
	sweeper := newSweeper(t, conn, provider, notifier)

	for _, status := range []enums.SubscriptionStatus{enums.SubscriptionStatusPastDue, enums.SubscriptionStatusTrialing} {
		sub := seedFounderSubscription(t, conn, "sub_"+string(status), enums.BillingIntervalMonthly, expiryNow.Add(-time.Hour))
		require.NoError(t, conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).Update("status", status).Error)
	}

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Migrated)
	assert.Empty(t, provider.calls)
	assert.Empty(t, notifier.tenants)
	assert.Equal(t, 2, usedCount(t, conn))
}
