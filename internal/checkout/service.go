package checkout

import (
	"context"
	"time"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/internal/reconciler"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type founderSlots interface {
	Remaining(ctx context.Context) (int, error)
	Grant(ctx context.Context, tx *gorm.DB) error
	Release(ctx context.Context, tx *gorm.DB) error
}

type promoValidator interface {
	Require(ctx context.Context, code string, interval enums.BillingInterval) (*promocodes.Validation, error)
}

type subscriptionApplier interface {
	Apply(ctx context.Context, event reconciler.Event) (*reconciler.Outcome, error)
}

type identityDispatcher interface {
	DispatchTenant(ctx context.Context, tenantID uuid.UUID)
	DispatchDeletes(ctx context.Context, externalIDs []string)
}

type overviewReader interface {
	Overview(ctx context.Context, tenantID uuid.UUID) (*billing.Overview, error)
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	TenantRepo        tenants.Repository
	Overview          overviewReader
	Founders          founderSlots
	Promos            promoValidator
	Provider          payments.Provider
	Prices            payments.PriceBook
	Reconciler        subscriptionApplier
	Identity          identityDispatcher
	TransactionRunner txRunner
	Logger            *logger.Logger
	SuccessURL        string
	CancelURL         string
	FounderExpiry     func(time.Time) time.Time
	Now               func() time.Time
}

// Service runs the tenant-facing billing flows: checkout, post-redirect sync,
// founder upgrade, account cancellation and status.
type Service struct {
	billingRepo   billing.Repository
	tenantRepo    tenants.Repository
	overview      overviewReader
	founders      founderSlots
	promos        promoValidator
	provider      payments.Provider
	prices        payments.PriceBook
	reconciler    subscriptionApplier
	identity      identityDispatcher
	tx            txRunner
	logg          *logger.Logger
	successURL    string
	cancelURL     string
	founderExpiry func(time.Time) time.Time
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.TenantRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant repo required")
	}
	if params.Overview == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing overview required")
	}
	if params.Founders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "founder allocator required")
	}
	if params.Promos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "promo code service required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment provider required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity syncer required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	founderExpiry := params.FounderExpiry
	if founderExpiry == nil {
		founderExpiry = func(from time.Time) time.Time { return from.AddDate(1, 0, 0) }
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		billingRepo:   params.BillingRepo,
		tenantRepo:    params.TenantRepo,
		overview:      params.Overview,
		founders:      params.Founders,
		promos:        params.Promos,
		provider:      params.Provider,
		prices:        params.Prices,
		reconciler:    params.Reconciler,
		identity:      params.Identity,
		tx:            params.TransactionRunner,
		logg:          params.Logger,
		successURL:    params.SuccessURL,
		cancelURL:     params.CancelURL,
		founderExpiry: founderExpiry,
		now:           now,
	}, nil
}

// StatusView is the billing summary shown to tenant members.
type StatusView struct {
	TenantID              uuid.UUID          `json:"tenant_id"`
	TenantStatus          enums.TenantStatus `json:"tenant_status"`
	TrialEndsAt           *time.Time         `json:"trial_ends_at,omitempty"`
	IsFoundingMember      bool               `json:"is_founding_member"`
	FounderSlotsRemaining int                `json:"founder_slots_remaining"`
	*billing.Overview
}

// Status returns the tenant's billing state.
func (s *Service) Status(ctx context.Context, actor auth.Actor) (*StatusView, error) {
	if err := requireMember(actor); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.FindTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	overview, err := s.overview.Overview(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.founders.Remaining(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count founder slots")
	}
	return &StatusView{
		TenantID:              tenant.ID,
		TenantStatus:          tenant.Status,
		TrialEndsAt:           tenant.TrialEndsAt,
		IsFoundingMember:      tenant.IsFoundingMember,
		FounderSlotsRemaining: remaining,
		Overview:              overview,
	}, nil
}

func requireMember(actor auth.Actor) error {
	if !actor.Complete() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "tenant membership required")
	}
	return nil
}

func requireBillingManager(actor auth.Actor) error {
	if err := requireMember(actor); err != nil {
		return err
	}
	if !actor.Role.CanManageBilling() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "billing role required")
	}
	return nil
}
