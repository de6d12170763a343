package founders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// ExpiryJobName identifies the founder price-lock sweep.
const ExpiryJobName = "founder-expiry"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type priceChanger interface {
	UpdateSubscriptionPrice(ctx context.Context, params payments.PriceChangeParams) (*payments.Subscription, error)
}

type tenantNotifier interface {
	DispatchTenant(ctx context.Context, tenantID uuid.UUID)
}

type ExpirySweeperParams struct {
	Allocator         *Allocator
	BillingRepo       billing.Repository
	TenantRepo        tenants.Repository
	Provider          priceChanger
	Prices            payments.PriceBook
	TransactionRunner txRunner
	Identity          tenantNotifier
	Logger            *logger.Logger
	BatchSize         int
	Now               func() time.Time
}

// ExpirySweeper moves founders whose price lock ended back to the standard price and
// returns their slot to the pool.
type ExpirySweeper struct {
	alloc     *Allocator
	billing   billing.Repository
	tenants   tenants.Repository
	provider  priceChanger
	prices    payments.PriceBook
	tx        txRunner
	identity  tenantNotifier
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewExpirySweeper(params ExpirySweeperParams) (*ExpirySweeper, error) {
	if params.Allocator == nil {
		return nil, errors.New("allocator is required")
	}
	if params.BillingRepo == nil {
		return nil, errors.New("billing repo is required")
	}
	if params.TenantRepo == nil {
		return nil, errors.New("tenant repo is required")
	}
	if params.Provider == nil {
		return nil, errors.New("payment provider is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Identity == nil {
		return nil, errors.New("identity syncer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ExpirySweeper{
		alloc:     params.Allocator,
		billing:   params.BillingRepo,
		tenants:   params.TenantRepo,
		provider:  params.Provider,
		prices:    params.Prices,
		tx:        params.TransactionRunner,
		identity:  params.Identity,
		logg:      params.Logger,
		batchSize: params.BatchSize,
		now:       now,
	}, nil
}

// Sweep migrates every expired founder it finds. A failing subscription does not stop the
// batch; its error is joined into the returned error and listed in the report.
func (s *ExpirySweeper) Sweep(ctx context.Context) (*types.SweepReport, error) {
	ctx = s.logg.WithField(ctx, "job", ExpiryJobName)
	expired, err := s.billing.ListExpiredFounders(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list expired founders: %w", err)
	}

	report := &types.SweepReport{Job: ExpiryJobName, Scanned: len(expired), Failures: []string{}}
	var errs error
	for i := range expired {
		sub := &expired[i]
		if err := s.migrate(ctx, sub); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			report.Fail(fmt.Sprintf("%s: %v", sub.ID, err))
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"tenant_id":       sub.TenantID.String(),
				"subscription_id": sub.ID.String(),
			}), "founders.expiry_failed", err)
			continue
		}
		report.Migrated++
		s.identity.DispatchTenant(ctx, sub.TenantID)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"scanned":  report.Scanned,
		"migrated": report.Migrated,
		"failures": len(report.Failures),
	}), "founders.expiry_sweep_complete")
	return report, errs
}

// migrate moves the provider price first. When the local write then fails the
// subscription stays listed as an expired founder and the next sweep repeats both steps.
func (s *ExpirySweeper) migrate(ctx context.Context, sub *models.Subscription) error {
	if sub.StripeItemID == nil || *sub.StripeItemID == "" {
		return errors.New("subscription item unknown")
	}
	standard := s.prices.Standard(sub.BillingInterval)
	if standard == "" {
		return fmt.Errorf("standard price for %s is not configured", sub.BillingInterval)
	}
	if _, err := s.provider.UpdateSubscriptionPrice(ctx, payments.PriceChangeParams{
		SubscriptionID: sub.StripeSubscriptionID,
		ItemID:         *sub.StripeItemID,
		PriceID:        standard,
	}); err != nil {
		return fmt.Errorf("update provider price: %w", err)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tenantRepo := s.tenants.WithTx(tx)
		billingRepo := s.billing.WithTx(tx)

		if _, err := tenantRepo.LockTenant(ctx, sub.TenantID); err != nil {
			return err
		}
		current, err := billingRepo.FindSubscriptionByTenant(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		if current == nil || !current.IsFounder {
			return nil
		}
		current.IsFounder = false
		current.FounderExpiresAt = nil
		current.StripePriceID = standard
		if err := billingRepo.UpdateSubscription(ctx, current); err != nil {
			return err
		}
		if err := tenantRepo.SetFoundingMember(ctx, sub.TenantID, false); err != nil {
			return err
		}
		return s.alloc.Release(ctx, tx)
	})
}
