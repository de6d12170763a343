package checkout

import (
	"context"
	"errors"

	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"gorm.io/gorm"
)

var (
	errNoFounderSlots  = pkgerrors.New(pkgerrors.CodeValidation, "no founder slots available")
	errAlreadyFounder  = pkgerrors.New(pkgerrors.CodeValidation, "already a founding member")
	errFounderRaceLost = errors.New("subscription became founder concurrently")
)

// UpgradeToFounder moves an active subscription to the founder price. The provider is
// updated first; if this call's grant or write then fails the price change is reverted.
// Losing to a concurrent upgrade leaves the provider price untouched.
func (s *Service) UpgradeToFounder(ctx context.Context, actor auth.Actor) (*models.Subscription, error) {
	if err := requireBillingManager(actor); err != nil {
		return nil, err
	}
	ctx = s.logg.WithTenantID(ctx, actor.TenantID.String())

	sub, err := s.billingRepo.FindSubscriptionByTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil || sub.Status != enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "active subscription required")
	}
	if sub.IsFounder {
		return nil, errAlreadyFounder
	}
	if sub.StripeItemID == nil || *sub.StripeItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription item unknown")
	}
	remaining, err := s.founders.Remaining(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count founder slots")
	}
	if remaining <= 0 {
		return nil, errNoFounderSlots
	}
	founderPrice := s.prices.Founder(sub.BillingInterval)
	if founderPrice == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "founder price is not configured")
	}

	previousPrice := sub.StripePriceID
	if _, err := s.provider.UpdateSubscriptionPrice(ctx, payments.PriceChangeParams{
		SubscriptionID: sub.StripeSubscriptionID,
		ItemID:         *sub.StripeItemID,
		PriceID:        founderPrice,
		Prorate:        true,
	}); err != nil {
		return nil, err
	}

	var updated *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tenantRepo := s.tenantRepo.WithTx(tx)
		billingRepo := s.billingRepo.WithTx(tx)

		tenant, err := tenantRepo.LockTenant(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		current, err := billingRepo.FindSubscriptionByTenant(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		// A concurrent upgrade already committed and owns the provider price.
		if current.IsFounder {
			return errFounderRaceLost
		}
		if err := s.founders.Grant(ctx, tx); err != nil {
			return err
		}
		if err := tenantRepo.SetFoundingMember(ctx, tenant.ID, true); err != nil {
			return err
		}
		expires := s.founderExpiry(s.now().UTC())
		current.IsFounder = true
		current.FounderExpiresAt = &expires
		current.StripePriceID = founderPrice
		if err := billingRepo.UpdateSubscription(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if errors.Is(err, errFounderRaceLost) {
		s.logg.Warn(ctx, "checkout.founder_upgrade_raced")
		return nil, errAlreadyFounder
	}
	if err != nil {
		s.revertPrice(ctx, sub, previousPrice)
		if errors.Is(err, founders.ErrNoSlots) {
			return nil, errNoFounderSlots
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant founder slot")
	}

	s.identity.DispatchTenant(ctx, actor.TenantID)
	s.logg.Info(ctx, "checkout.founder_upgraded")
	return updated, nil
}

func (s *Service) revertPrice(ctx context.Context, sub *models.Subscription, priceID string) {
	if _, err := s.provider.UpdateSubscriptionPrice(ctx, payments.PriceChangeParams{
		SubscriptionID: sub.StripeSubscriptionID,
		ItemID:         *sub.StripeItemID,
		PriceID:        priceID,
	}); err != nil {
		s.logg.Error(ctx, "checkout.founder_price_revert_failed", err)
		return
	}
	s.logg.Warn(ctx, "checkout.founder_price_reverted")
}
