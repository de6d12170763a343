package reconciler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubIdentity struct {
	mu      sync.Mutex
	tenants []uuid.UUID
}

func (s *stubIdentity) DispatchTenant(_ context.Context, tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = append(s.tenants, tenantID)
}

type stubProvider struct {
	payments.Provider
	priceChanges []payments.PriceChangeParams
	subscription *payments.Subscription
}

func (s *stubProvider) UpdateSubscriptionPrice(_ context.Context, params payments.PriceChangeParams) (*payments.Subscription, error) {
	s.priceChanges = append(s.priceChanges, params)
	return &payments.Subscription{ID: params.SubscriptionID, PriceID: params.PriceID}, nil
}

func (s *stubProvider) GetSubscription(_ context.Context, id string) (*payments.Subscription, error) {
	out := *s.subscription
	out.ID = id
	return &out, nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	identity *stubIdentity
	provider *stubProvider
	alloc    *founders.Allocator
}

func newFixture(t *testing.T, maxSlots int) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tenantRepo := tenants.NewRepository(conn)
	alloc, err := founders.NewAllocator(conn, tenantRepo, maxSlots)
	require.NoError(t, err)
	require.NoError(t, alloc.EnsureCounter(context.Background()))
	promos, err := promocodes.NewService(promocodes.ServiceParams{Repo: promocodes.NewRepository(conn)})
	require.NoError(t, err)

	identity := &stubIdentity{}
	provider := &stubProvider{subscription: providerSub(enums.SubscriptionStatusActive)}
	svc, err := NewService(ServiceParams{
		BillingRepo:       billing.NewRepository(conn),
		TenantRepo:        tenantRepo,
		Founders:          alloc,
		Promos:            promos,
		Provider:          provider,
		Prices:            payments.PriceBook{Monthly: "price_monthly", Yearly: "price_yearly", FounderMonthly: "price_founder_monthly"},
		Identity:          identity,
		TransactionRunner: db.FromConn(conn),
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		FounderExpiry:     func(from time.Time) time.Time { return from.AddDate(0, 12, 0) },
		Now:               func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, identity: identity, provider: provider, alloc: alloc}
}

func (f *fixture) seedTenant(t *testing.T, status enums.TenantStatus) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: "Película Studio", Status: status}
	require.NoError(t, f.db.Create(tenant).Error)
	return tenant
}

func (f *fixture) seedPromo(t *testing.T, maxUses int) *models.PromoCode {
	t.Helper()
	promo := &models.PromoCode{
		Code:                  "LAUNCH20",
		DiscountPercent:       decimal.NewFromInt(20),
		MaxUses:               &maxUses,
		DurationMonthsMonthly: 3,
		DurationMonthsYearly:  1,
		IsActive:              true,
	}
	require.NoError(t, f.db.Create(promo).Error)
	return promo
}

func (f *fixture) reload(t *testing.T, tenantID uuid.UUID) (*models.Tenant, *models.Subscription) {
	t.Helper()
	var tenant models.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", tenantID).Error)
	var sub models.Subscription
	err := f.db.First(&sub, "tenant_id = ?", tenantID).Error
	if err == gorm.ErrRecordNotFound {
		return &tenant, nil
	}
	require.NoError(t, err)
	return &tenant, &sub
}

func checkoutEvent(tenantID uuid.UUID, promoID *uuid.UUID, source Source) Event {
	return Event{
		Kind:         KindCheckoutCompleted,
		Source:       source,
		TenantID:     tenantID,
		Subscription: providerSub(enums.SubscriptionStatusActive),
		Founder:      true,
		PromoCodeID:  promoID,
		PromoMonths:  3,
	}
}

func TestApplyCheckoutGrantsFounderAndPromoOnce(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	tenant := f.seedTenant(t, enums.TenantStatusTrial)
	promo := f.seedPromo(t, 5)

	out, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, &promo.ID, SourceWebhook))
	require.NoError(t, err)
	assert.True(t, out.FounderGranted)
	assert.True(t, out.PromoConsumed)

	// The client pull lands after the webhook with the same payload.
	out, err = f.svc.Apply(ctx, checkoutEvent(tenant.ID, &promo.ID, SourceSync))
	require.NoError(t, err)
	assert.False(t, out.FounderGranted)
	assert.False(t, out.PromoConsumed)

	storedTenant, sub := f.reload(t, tenant.ID)
	require.NotNil(t, sub)
	assert.Equal(t, enums.TenantStatusActive, storedTenant.Status)
	assert.True(t, storedTenant.IsFoundingMember)
	assert.True(t, sub.IsFounder)
	assert.Equal(t, 3, sub.PromoMonthsRemaining)

	snap, err := f.alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counter)
	assert.Equal(t, 1, snap.Used)

	var reloaded models.PromoCode
	require.NoError(t, f.db.First(&reloaded, "id = ?", promo.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)

	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, []uuid.UUID{tenant.ID, tenant.ID}, f.identity.tenants)
}

func TestApplyCheckoutAtCeilingStoresNonFounderAndRevertsPrice(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&models.Tenant{Name: "Early", Status: enums.TenantStatusActive, IsFoundingMember: true}).Error)
	tenant := f.seedTenant(t, enums.TenantStatusTrial)

	out, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, nil, SourceWebhook))
	require.NoError(t, err)
	assert.True(t, out.FounderRefused)

	storedTenant, sub := f.reload(t, tenant.ID)
	require.NotNil(t, sub)
	assert.False(t, sub.IsFounder)
	assert.Nil(t, sub.FounderExpiresAt)
	assert.False(t, storedTenant.IsFoundingMember)
	assert.Equal(t, enums.TenantStatusActive, storedTenant.Status)

	require.Len(t, f.provider.priceChanges, 1)
	assert.Equal(t, "price_monthly", f.provider.priceChanges[0].PriceID)
	assert.Equal(t, "si_1", f.provider.priceChanges[0].ItemID)
}

func TestApplyCheckoutUnknownTenantFails(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	_, err := f.svc.Apply(context.Background(), checkoutEvent(uuid.New(), nil, SourceWebhook))
	require.Error(t, err)
}

func TestApplyEventsForUnknownSubscriptionAreSkipped(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()

	for _, event := range []Event{
		{Kind: KindSubscriptionUpdated, Subscription: providerSub(enums.SubscriptionStatusActive)},
		{Kind: KindSubscriptionDeleted, Subscription: providerSub(enums.SubscriptionStatusCanceled)},
		{Kind: KindInvoiceFailed, Invoice: &Invoice{ID: "in_x", SubscriptionID: "sub_1"}},
	} {
		out, err := f.svc.Apply(ctx, event)
		require.NoError(t, err)
		assert.NotEmpty(t, out.Skipped)
	}

	var subs, paymentsCount int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subs).Error)
	require.NoError(t, f.db.Model(&models.SubscriptionPayment{}).Count(&paymentsCount).Error)
	assert.Zero(t, subs)
	assert.Zero(t, paymentsCount)
	assert.Empty(t, f.identity.tenants)
}

func TestApplyInvoiceFailedIsIdempotent(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	tenant := f.seedTenant(t, enums.TenantStatusTrial)
	_, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, nil, SourceWebhook))
	require.NoError(t, err)

	failed := Event{Kind: KindInvoiceFailed, Source: SourceWebhook, Invoice: &Invoice{
		ID:             "in_fail",
		SubscriptionID: "sub_1",
		AmountCents:    19900,
		Currency:       "brl",
		FailureReason:  "card_declined",
	}}
	for i := 0; i < 3; i++ {
		_, err := f.svc.Apply(ctx, failed)
		require.NoError(t, err)
	}

	storedTenant, sub := f.reload(t, tenant.ID)
	assert.Equal(t, enums.TenantStatusPastDue, storedTenant.Status)
	assert.Equal(t, enums.SubscriptionStatusPastDue, sub.Status)

	var rows []models.SubscriptionPayment
	require.NoError(t, f.db.Where("stripe_invoice_id = ?", "in_fail").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.PaymentStatusFailed, rows[0].Status)
}

func TestApplyInvoicePaidRestoresAccessAndCountsPromoMonthOnce(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	tenant := f.seedTenant(t, enums.TenantStatusTrial)
	promo := f.seedPromo(t, 10)
	_, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, &promo.ID, SourceWebhook))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Tenant{}).Where("id = ?", tenant.ID).Update("status", enums.TenantStatusPastDue).Error)

	paid := Event{Kind: KindInvoicePaid, Source: SourceWebhook, Invoice: &Invoice{ID: "in_ok", SubscriptionID: "sub_1", AmountCents: 15920}}
	_, err = f.svc.Apply(ctx, paid)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, paid)
	require.NoError(t, err)

	storedTenant, sub := f.reload(t, tenant.ID)
	assert.Equal(t, enums.TenantStatusActive, storedTenant.Status)
	assert.Equal(t, 2, sub.PromoMonthsRemaining)
}

func TestApplySubscriptionDeletedReleasesFounderSlot(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	tenant := f.seedTenant(t, enums.TenantStatusTrial)
	_, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, nil, SourceWebhook))
	require.NoError(t, err)

	out, err := f.svc.Apply(ctx, Event{Kind: KindSubscriptionDeleted, Source: SourceWebhook, Subscription: providerSub(enums.SubscriptionStatusCanceled)})
	require.NoError(t, err)
	assert.True(t, out.FounderRevoked)

	storedTenant, sub := f.reload(t, tenant.ID)
	assert.Equal(t, enums.TenantStatusCanceled, storedTenant.Status)
	assert.False(t, storedTenant.IsFoundingMember)
	assert.Equal(t, enums.SubscriptionStatusCanceled, sub.Status)

	snap, err := f.alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Counter)

	// Redelivery finds the founder flag already cleared.
	out, err = f.svc.Apply(ctx, Event{Kind: KindSubscriptionDeleted, Source: SourceWebhook, Subscription: providerSub(enums.SubscriptionStatusCanceled)})
	require.NoError(t, err)
	assert.False(t, out.FounderRevoked)
}

func TestApplyCanceledUpdateReleasesFounderSlotOnce(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	tenant := f.seedTenant(t, enums.TenantStatusTrial)
	_, err := f.svc.Apply(ctx, checkoutEvent(tenant.ID, nil, SourceWebhook))
	require.NoError(t, err)

	out, err := f.svc.Apply(ctx, Event{Kind: KindSubscriptionUpdated, Source: SourceWebhook, Subscription: providerSub(enums.SubscriptionStatusCanceled)})
	require.NoError(t, err)
	assert.True(t, out.FounderRevoked)

	storedTenant, sub := f.reload(t, tenant.ID)
	assert.Equal(t, enums.TenantStatusCanceled, storedTenant.Status)
	assert.False(t, storedTenant.IsFoundingMember)
	assert.False(t, sub.IsFounder)

	// The deletion that follows finds the slot already returned.
	out, err = f.svc.Apply(ctx, Event{Kind: KindSubscriptionDeleted, Source: SourceWebhook, Subscription: providerSub(enums.SubscriptionStatusCanceled)})
	require.NoError(t, err)
	assert.False(t, out.FounderRevoked)

	snap, err := f.alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Counter)
}
