package checkout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/internal/reconciler"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var prices = payments.PriceBook{
	Monthly:        "price_monthly",
	Yearly:         "price_yearly",
	FounderMonthly: "price_founder_monthly",
	FounderYearly:  "price_founder_yearly",
}

type stubProvider struct {
	mu           sync.Mutex
	customers    []payments.CustomerParams
	coupons      []payments.CouponParams
	sessions     []payments.CheckoutSessionParams
	priceChanges []payments.PriceChangeParams
	canceled     []string
	session      *payments.CheckoutSession
	subscription *payments.Subscription
	cancelErr    error
	// onPriceChange runs after a price change is recorded, outside the lock.
	onPriceChange func(payments.PriceChangeParams)
}

func (s *stubProvider) CreateCustomer(_ context.Context, params payments.CustomerParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, params)
	return "cus_new", nil
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, params payments.CheckoutSessionParams) (*payments.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, params)
	return &payments.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (s *stubProvider) GetCheckoutSession(_ context.Context, id string) (*payments.CheckoutSession, error) {
	if s.session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	out := *s.session
	out.ID = id
	return &out, nil
}

func (s *stubProvider) GetSubscription(_ context.Context, id string) (*payments.Subscription, error) {
	out := *s.subscription
	out.ID = id
	return &out, nil
}

func (s *stubProvider) UpdateSubscriptionPrice(_ context.Context, params payments.PriceChangeParams) (*payments.Subscription, error) {
	s.mu.Lock()
	s.priceChanges = append(s.priceChanges, params)
	hook := s.onPriceChange
	s.mu.Unlock()
	if hook != nil {
		hook(params)
	}
	return &payments.Subscription{ID: params.SubscriptionID, PriceID: params.PriceID}, nil
}

func (s *stubProvider) CancelSubscription(_ context.Context, id, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, id)
	return s.cancelErr
}

func (s *stubProvider) CreateCoupon(_ context.Context, params payments.CouponParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons = append(s.coupons, params)
	return "co_1", nil
}

type stubIdentity struct {
	mu      sync.Mutex
	tenants []uuid.UUID
	deletes []string
}

func (s *stubIdentity) DispatchTenant(_ context.Context, tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = append(s.tenants, tenantID)
}

func (s *stubIdentity) DispatchDeletes(_ context.Context, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, ids...)
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	provider *stubProvider
	identity *stubIdentity
}

func newFixture(t *testing.T, maxSlots int) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	now := func() time.Time { return fixedNow }
	expiry := func(from time.Time) time.Time { return from.AddDate(0, 12, 0) }

	tenantRepo := tenants.NewRepository(conn)
	billingRepo := billing.NewRepository(conn)
	alloc, err := founders.NewAllocator(conn, tenantRepo, maxSlots)
	require.NoError(t, err)
	require.NoError(t, alloc.EnsureCounter(context.Background()))
	promos, err := promocodes.NewService(promocodes.ServiceParams{Repo: promocodes.NewRepository(conn), Now: now})
	require.NoError(t, err)
	overview, err := billing.NewService(billing.ServiceParams{Repo: billingRepo})
	require.NoError(t, err)

	provider := &stubProvider{subscription: &payments.Subscription{
		CustomerID: "cus_new",
		PriceID:    "price_founder_monthly",
		ItemID:     "si_1",
		Status:     enums.SubscriptionStatusActive,
		Interval:   enums.BillingIntervalMonthly,
	}}
	identity := &stubIdentity{}
	rec, err := reconciler.NewService(reconciler.ServiceParams{
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Founders:          alloc,
		Promos:            promos,
		Provider:          provider,
		Prices:            prices,
		Identity:          identity,
		TransactionRunner: db.FromConn(conn),
		Logger:            logg,
		FounderExpiry:     expiry,
		Now:               now,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Overview:          overview,
		Founders:          alloc,
		Promos:            promos,
		Provider:          provider,
		Prices:            prices,
		Reconciler:        rec,
		Identity:          identity,
		TransactionRunner: db.FromConn(conn),
		Logger:            logg,
		SuccessURL:        "https://app.filmtech.test/billing/success",
		CancelURL:         "https://app.filmtech.test/billing",
		FounderExpiry:     expiry,
		Now:               now,
	})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, provider: provider, identity: identity}
}

func (f *fixture) seedOwner(t *testing.T) auth.Actor {
	t.Helper()
	tenant := &models.Tenant{Name: "Blindagem Norte", Status: enums.TenantStatusTrial}
	require.NoError(t, f.db.Create(tenant).Error)
	external := "user_" + tenant.ID.String()[:8]
	owner := &models.User{
		TenantID:       tenant.ID,
		Email:          "dono@blindagem.test",
		Role:           enums.UserRoleOwner,
		Status:         enums.UserStatusActive,
		ExternalAuthID: &external,
	}
	require.NoError(t, f.db.Create(owner).Error)
	return auth.Actor{ExternalID: external, UserID: owner.ID, TenantID: tenant.ID, Role: enums.UserRoleOwner}
}

func (f *fixture) seedActiveSubscription(t *testing.T, tenantID uuid.UUID, founder bool) *models.Subscription {
	t.Helper()
	item := "si_1"
	sub := &models.Subscription{
		TenantID:             tenantID,
		StripeSubscriptionID: "sub_" + tenantID.String()[:8],
		StripePriceID:        "price_monthly",
		StripeItemID:         &item,
		Status:               enums.SubscriptionStatusActive,
		BillingInterval:      enums.BillingIntervalMonthly,
		IsFounder:            founder,
	}
	require.NoError(t, f.db.Create(sub).Error)
	require.NoError(t, f.db.Model(&models.Tenant{}).Where("id = ?", tenantID).
		Updates(map[string]any{"status": enums.TenantStatusActive, "is_founding_member": founder}).Error)
	return sub
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func TestCreateSessionForFounderWithPromo(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	actor := f.seedOwner(t)
	maxUses := 10
	promo := &models.PromoCode{
		Code:                  "OFICINA30",
		DiscountPercent:       decimal.NewFromInt(30),
		MaxUses:               &maxUses,
		DurationMonthsMonthly: 3,
		DurationMonthsYearly:  1,
		IsActive:              true,
	}
	require.NoError(t, f.db.Create(promo).Error)

	sess, err := f.svc.CreateSession(ctx, actor, SessionInput{
		Interval:  enums.BillingIntervalMonthly,
		PromoCode: " oficina30 ",
		Founder:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.SessionID)

	require.Len(t, f.provider.sessions, 1)
	params := f.provider.sessions[0]
	assert.Equal(t, "price_founder_monthly", params.PriceID)
	assert.Equal(t, "co_1", params.CouponID)
	assert.Equal(t, "cus_new", params.CustomerID)
	assert.Equal(t, actor.TenantID.String(), params.Metadata[payments.MetadataTenantID])
	assert.Equal(t, "true", params.Metadata[payments.MetadataIsFounder])
	assert.Equal(t, promo.ID.String(), params.Metadata[payments.MetadataPromoCodeID])
	assert.Equal(t, "3", params.Metadata[payments.MetadataPromoMonths])

	require.Len(t, f.provider.coupons, 1)
	assert.Equal(t, 3, f.provider.coupons[0].DurationMonths)
	require.Len(t, f.provider.customers, 1)
	assert.Equal(t, "dono@blindagem.test", f.provider.customers[0].Email)

	var tenant models.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", actor.TenantID).Error)
	require.NotNil(t, tenant.StripeCustomerID)
	assert.Equal(t, "cus_new", *tenant.StripeCustomerID)

	// A second session reuses the stored customer.
	_, err = f.svc.CreateSession(ctx, actor, SessionInput{Interval: enums.BillingIntervalYearly})
	require.NoError(t, err)
	assert.Len(t, f.provider.customers, 1)
	assert.Equal(t, "price_yearly", f.provider.sessions[1].PriceID)
}

func TestCreateSessionRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	actor := f.seedOwner(t)

	founder := &models.Tenant{Name: "Primeiro", Status: enums.TenantStatusActive, IsFoundingMember: true}
	require.NoError(t, f.db.Create(founder).Error)

	_, err := f.svc.CreateSession(ctx, actor, SessionInput{Interval: enums.BillingIntervalMonthly, Founder: true})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "no founder slots available", pkgerrors.As(err).Message())

	_, err = f.svc.CreateSession(ctx, actor, SessionInput{Interval: enums.BillingIntervalMonthly, PromoCode: "NOPE"})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, promocodes.InvalidMessage, pkgerrors.As(err).Message())

	member := actor
	member.Role = enums.UserRoleMember
	_, err = f.svc.CreateSession(ctx, member, SessionInput{Interval: enums.BillingIntervalMonthly})
	requireCode(t, err, pkgerrors.CodeForbidden)

	f.seedActiveSubscription(t, actor.TenantID, false)
	_, err = f.svc.CreateSession(ctx, actor, SessionInput{Interval: enums.BillingIntervalMonthly})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, http.StatusUnprocessableEntity, pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).HTTPStatus)

	assert.Empty(t, f.provider.sessions)
}

func paidSession(tenantID uuid.UUID, status string) *payments.CheckoutSession {
	return &payments.CheckoutSession{
		PaymentStatus:  status,
		CustomerID:     "cus_new",
		SubscriptionID: "sub_checkout",
		Metadata: map[string]string{
			payments.MetadataTenantID:  tenantID.String(),
			payments.MetadataIsFounder: "true",
		},
	}
}

func TestSyncUnpaidCheckoutWritesNothing(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	actor := f.seedOwner(t)
	f.provider.session = paidSession(actor.TenantID, "unpaid")

	_, err := f.svc.Sync(context.Background(), actor, "cs_1")
	requireCode(t, err, pkgerrors.CodeValidation)

	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSyncRejectsForeignCheckout(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	actor := f.seedOwner(t)
	f.provider.session = paidSession(uuid.New(), "paid")

	_, err := f.svc.Sync(context.Background(), actor, "cs_1")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestSyncAppliesOnceThenShortCircuits(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	actor := f.seedOwner(t)
	f.provider.session = paidSession(actor.TenantID, "paid")

	res, err := f.svc.Sync(ctx, actor, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.FounderGranted)
	assert.Equal(t, enums.SubscriptionStatusActive, res.Status)

	res, err = f.svc.Sync(ctx, actor, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyActive)
	assert.False(t, res.Applied)

	var slot models.FounderSlot
	require.NoError(t, f.db.First(&slot, models.FounderSlotCounterID).Error)
	assert.Equal(t, 1, slot.UsedCount)

	view, err := f.svc.Status(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, enums.TenantStatusActive, view.TenantStatus)
	assert.True(t, view.IsFoundingMember)
	assert.Equal(t, founders.DefaultMaxSlots-1, view.FounderSlotsRemaining)
	require.NotNil(t, view.Subscription)
	assert.Equal(t, "sub_checkout", view.Subscription.StripeSubscriptionID)
}

func TestUpgradeToFounder(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	actor := f.seedOwner(t)
	f.seedActiveSubscription(t, actor.TenantID, false)

	sub, err := f.svc.UpgradeToFounder(ctx, actor)
	require.NoError(t, err)
	assert.True(t, sub.IsFounder)
	assert.Equal(t, "price_founder_monthly", sub.StripePriceID)
	require.NotNil(t, sub.FounderExpiresAt)
	assert.True(t, sub.FounderExpiresAt.Equal(fixedNow.AddDate(0, 12, 0)))

	require.Len(t, f.provider.priceChanges, 1)
	assert.True(t, f.provider.priceChanges[0].Prorate)

	var tenant models.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", actor.TenantID).Error)
	assert.True(t, tenant.IsFoundingMember)
	assert.Equal(t, []uuid.UUID{actor.TenantID}, f.identity.tenants)

	_, err = f.svc.UpgradeToFounder(ctx, actor)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpgradeToFounderRevertsPriceWhenGrantFails(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	actor := f.seedOwner(t)
	f.seedActiveSubscription(t, actor.TenantID, false)
	// Counter drifted ahead of the tenant projection; the grant is refused.
	require.NoError(t, f.db.Model(&models.FounderSlot{}).Where("id = ?", models.FounderSlotCounterID).
		UpdateColumn("used_count", 2).Error)

	_, err := f.svc.UpgradeToFounder(ctx, actor)
	requireCode(t, err, pkgerrors.CodeValidation)

	require.Len(t, f.provider.priceChanges, 2)
	assert.Equal(t, "price_founder_monthly", f.provider.priceChanges[0].PriceID)
	assert.Equal(t, "price_monthly", f.provider.priceChanges[1].PriceID)

	var sub models.Subscription
	require.NoError(t, f.db.First(&sub, "tenant_id = ?", actor.TenantID).Error)
	assert.False(t, sub.IsFounder)
	assert.Equal(t, "price_monthly", sub.StripePriceID)
}

func TestUpgradeToFounderLosingRaceKeepsWinnerPrice(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	actor := f.seedOwner(t)
	sub := f.seedActiveSubscription(t, actor.TenantID, false)

	// Another upgrade for the same tenant commits between our provider call and our transaction.
	expires := fixedNow.AddDate(0, 12, 0)
	f.provider.onPriceChange = func(payments.PriceChangeParams) {
		f.provider.onPriceChange = nil
		require.NoError(t, f.db.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]any{
			"is_founder":         true,
			"founder_expires_at": expires,
			"stripe_price_id":    "price_founder_monthly",
		}).Error)
	}

	_, err := f.svc.UpgradeToFounder(ctx, actor)
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "already a founding member", pkgerrors.As(err).Message())

	require.Len(t, f.provider.priceChanges, 1)
	assert.Equal(t, "price_founder_monthly", f.provider.priceChanges[0].PriceID)

	var stored models.Subscription
	require.NoError(t, f.db.First(&stored, "id = ?", sub.ID).Error)
	assert.True(t, stored.IsFounder)
	assert.Equal(t, "price_founder_monthly", stored.StripePriceID)
	assert.Empty(t, f.identity.tenants)
}

func TestCancelAccountRequiresExactConfirmation(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	actor := f.seedOwner(t)

	_, err := f.svc.CancelAccount(context.Background(), actor, "cancelar assinatura")
	requireCode(t, err, pkgerrors.CodeValidation)

	admin := actor
	admin.Role = enums.UserRoleAdmin
	_, err = f.svc.CancelAccount(context.Background(), admin, CancelConfirmation)
	requireCode(t, err, pkgerrors.CodeForbidden)

	var count int64
	require.NoError(t, f.db.Model(&models.Tenant{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCancelAccountDeletesEverythingDespiteProviderFailure(t *testing.T) {
	f := newFixture(t, founders.DefaultMaxSlots)
	ctx := context.Background()
	actor := f.seedOwner(t)
	sub := f.seedActiveSubscription(t, actor.TenantID, true)
	require.NoError(t, f.db.Model(&models.FounderSlot{}).Where("id = ?", models.FounderSlotCounterID).
		UpdateColumn("used_count", 1).Error)
	paidAt := fixedNow
	require.NoError(t, f.db.Create(&models.SubscriptionPayment{
		SubscriptionID:  sub.ID,
		StripeInvoiceID: "in_1",
		AmountCents:     19900,
		Currency:        "brl",
		Status:          enums.PaymentStatusSucceeded,
		PaidAt:          &paidAt,
	}).Error)
	f.provider.cancelErr = errors.New("stripe timeout")

	res, err := f.svc.CancelAccount(ctx, actor, "  "+CancelConfirmation+"\n")
	require.NoError(t, err)
	assert.False(t, res.ProviderCanceled)
	assert.True(t, res.FounderSlotReleased)
	assert.Equal(t, 1, res.UsersDeleted)
	assert.Equal(t, []string{sub.StripeSubscriptionID}, f.provider.canceled)
	assert.Equal(t, []string{actor.ExternalID}, f.identity.deletes)

	for _, model := range []any{&models.Tenant{}, &models.User{}, &models.Subscription{}, &models.SubscriptionPayment{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T rows remain", model)
	}
	var slot models.FounderSlot
	require.NoError(t, f.db.First(&slot, models.FounderSlotCounterID).Error)
	assert.Zero(t, slot.UsedCount)
}
