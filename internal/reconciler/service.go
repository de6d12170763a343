package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type founderSlots interface {
	Grant(ctx context.Context, tx *gorm.DB) error
	Release(ctx context.Context, tx *gorm.DB) error
}

type promoConsumer interface {
	Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type identityDispatcher interface {
	DispatchTenant(ctx context.Context, tenantID uuid.UUID)
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	TenantRepo        tenants.Repository
	Founders          founderSlots
	Promos            promoConsumer
	Provider          payments.Provider
	Prices            payments.PriceBook
	Identity          identityDispatcher
	TransactionRunner txRunner
	Logger            *logger.Logger
	FounderExpiry     func(time.Time) time.Time
	Now               func() time.Time
}

// Service applies lifecycle events to persisted tenant and subscription state.
type Service struct {
	billingRepo   billing.Repository
	tenantRepo    tenants.Repository
	founders      founderSlots
	promos        promoConsumer
	provider      payments.Provider
	prices        payments.PriceBook
	identity      identityDispatcher
	tx            txRunner
	logg          *logger.Logger
	founderExpiry func(time.Time) time.Time
	now           func() time.Time
}

// Outcome reports what Apply did.
type Outcome struct {
	TenantID       uuid.UUID
	Skipped        string
	Subscription   *models.Subscription
	Payment        *models.SubscriptionPayment
	FounderGranted bool
	FounderRefused bool
	FounderRevoked bool
	PromoConsumed  bool
	SyncIdentity   bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.TenantRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant repo required")
	}
	if params.Founders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "founder allocator required")
	}
	if params.Promos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "promo code service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		billingRepo:   params.BillingRepo,
		tenantRepo:    params.TenantRepo,
		founders:      params.Founders,
		promos:        params.Promos,
		provider:      params.Provider,
		prices:        params.Prices,
		identity:      params.Identity,
		tx:            params.TransactionRunner,
		logg:          params.Logger,
		founderExpiry: params.FounderExpiry,
		now:           now,
	}, nil
}

// Apply reduces event against the current state and persists the result in one
// transaction. The tenant row stays locked until commit, so concurrent writers for
// the same tenant apply their side counters one after the other.
func (s *Service) Apply(ctx context.Context, event Event) (*Outcome, error) {
	out := &Outcome{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		*out = Outcome{}
		return s.apply(ctx, tx, event, out)
	})
	if err != nil {
		return nil, err
	}

	if out.Skipped != "" {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"kind":            string(event.Kind),
			"source":          string(event.Source),
			"subscription_id": event.ExternalSubscriptionID(),
			"reason":          out.Skipped,
		}), "reconciler.event_skipped")
		return out, nil
	}

	ctx = s.logg.WithTenantID(ctx, out.TenantID.String())
	if out.FounderRefused {
		s.revertFounderPrice(ctx, out.Subscription)
	}
	if out.SyncIdentity && s.identity != nil {
		s.identity.DispatchTenant(ctx, out.TenantID)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"kind":            string(event.Kind),
		"source":          string(event.Source),
		"founder_granted": out.FounderGranted,
		"promo_consumed":  out.PromoConsumed,
	}), "reconciler.event_applied")
	return out, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event Event, out *Outcome) error {
	billingRepo := s.billingRepo.WithTx(tx)
	tenantRepo := s.tenantRepo.WithTx(tx)

	tenantID := event.TenantID
	if event.Kind != KindCheckoutCompleted {
		existing, err := billingRepo.FindSubscriptionByStripeID(ctx, event.ExternalSubscriptionID())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}
		if existing == nil {
			out.Skipped = "subscription not found"
			return nil
		}
		tenantID = existing.TenantID
	}
	if tenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant id missing from checkout")
	}

	tenant, err := tenantRepo.LockTenant(ctx, tenantID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock tenant")
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found").
			WithDetails(map[string]any{"tenant_id": tenantID.String()})
	}

	// Re-read under the lock; a concurrent writer may have committed in between.
	state := State{Tenant: tenant}
	if event.Kind == KindCheckoutCompleted {
		state.Subscription, err = billingRepo.FindSubscriptionByTenant(ctx, tenantID)
	} else {
		state.Subscription, err = billingRepo.FindSubscriptionByStripeID(ctx, event.ExternalSubscriptionID())
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if event.Invoice != nil {
		state.Payment, err = billingRepo.FindPaymentByInvoice(ctx, event.Invoice.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
	}

	result, err := Reduce(state, event, Options{Now: s.now().UTC(), FounderExpiry: s.founderExpiry})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reduce event")
	}
	out.TenantID = tenantID
	if result.Skipped != "" {
		out.Skipped = result.Skipped
		return nil
	}
	next := result.Subscription

	if result.Effects.GrantFounder {
		switch err := s.founders.Grant(ctx, tx); {
		case errors.Is(err, founders.ErrNoSlots):
			next.IsFounder = false
			next.FounderExpiresAt = nil
			out.FounderRefused = true
			s.logg.Warn(s.logg.WithTenantID(ctx, tenantID.String()), "reconciler.founder_ceiling_reached")
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant founder slot")
		default:
			if err := tenantRepo.SetFoundingMember(ctx, tenantID, true); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag founding member")
			}
			out.FounderGranted = true
		}
	}
	if result.Effects.RevokeFounder {
		if err := s.founders.Release(ctx, tx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release founder slot")
		}
		if err := tenantRepo.SetFoundingMember(ctx, tenantID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear founding member")
		}
		out.FounderRevoked = true
	}
	if id := result.Effects.ConsumePromo; id != nil {
		switch err := s.promos.Consume(ctx, tx, *id); {
		case errors.Is(err, promocodes.ErrExhausted):
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"tenant_id":     tenantID.String(),
				"promo_code_id": id.String(),
			}), "reconciler.promo_exhausted")
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume promo code")
		default:
			out.PromoConsumed = true
		}
	}

	if result.Created {
		err = billingRepo.CreateSubscription(ctx, next)
	} else {
		err = billingRepo.UpdateSubscription(ctx, next)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save subscription")
	}
	out.Subscription = next

	if result.Payment != nil {
		result.Payment.SubscriptionID = next.ID
		if err := billingRepo.UpsertPayment(ctx, result.Payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment")
		}
		out.Payment = result.Payment
	}

	if result.TenantStatus != nil && *result.TenantStatus != tenant.Status {
		if err := tenantRepo.UpdateTenantStatus(ctx, tenantID, *result.TenantStatus); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update tenant status")
		}
	}
	out.SyncIdentity = result.Effects.SyncIdentity || out.FounderGranted || out.FounderRevoked
	return nil
}

// revertFounderPrice moves a subscription that was checked out at the founder price
// back to the standard price once the grant was refused.
func (s *Service) revertFounderPrice(ctx context.Context, sub *models.Subscription) {
	if s.provider == nil || sub == nil || sub.StripeItemID == nil {
		s.logg.Warn(ctx, "reconciler.founder_price_revert_skipped")
		return
	}
	priceID := s.prices.Standard(sub.BillingInterval)
	if priceID == "" || priceID == sub.StripePriceID {
		return
	}
	if _, err := s.provider.UpdateSubscriptionPrice(ctx, payments.PriceChangeParams{
		SubscriptionID: sub.StripeSubscriptionID,
		ItemID:         *sub.StripeItemID,
		PriceID:        priceID,
	}); err != nil {
		s.logg.Error(ctx, "reconciler.founder_price_revert_failed", err)
		return
	}
	s.logg.Info(ctx, "reconciler.founder_price_reverted")
}
