// Package app assembles the services shared by the API and the cron worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autevo/filmtechos-backend/internal/billing"
	"github.com/autevo/filmtechos-backend/internal/checkout"
	"github.com/autevo/filmtechos-backend/internal/cron"
	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/identity"
	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/internal/reconciler"
	"github.com/autevo/filmtechos-backend/internal/team"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	clerkwebhook "github.com/autevo/filmtechos-backend/internal/webhooks/clerk"
	"github.com/autevo/filmtechos-backend/internal/webhooks/ledger"
	stripewebhook "github.com/autevo/filmtechos-backend/internal/webhooks/stripe"
	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/metrics"
	"github.com/autevo/filmtechos-backend/pkg/redis"
	"github.com/autevo/filmtechos-backend/pkg/stripe"
)

const (
	stripeGuardScope = "stripe-webhook"
	clerkGuardScope  = "clerk-webhook"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Container holds every wired service. Fields are safe to share between goroutines.
type Container struct {
	TenantRepo tenants.Repository

	Stripe        *stripe.Client
	Founders      *founders.Allocator
	Identity      *identity.Syncer
	Promos        *promocodes.Service
	Reconciler    *reconciler.Service
	Checkout      *checkout.Service
	Team          *team.Service
	Tenants       *tenants.Service
	StripeWebhook *stripewebhook.Service
	ClerkWebhook  *clerkwebhook.Service
	ClerkVerifier clerkwebhook.Verifier
	Cron          *cron.Service
}

// Build wires repositories, providers and services from configuration.
func Build(ctx context.Context, p Params) (*Container, error) {
	cfg, logg := p.Config, p.Logger
	if cfg == nil || logg == nil || p.DB == nil || p.Redis == nil {
		return nil, fmt.Errorf("config, logger, db and redis are required")
	}
	reg := p.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	conn := p.DB.DB()

	tenantRepo := tenants.NewRepository(conn)
	billingRepo := billing.NewRepository(conn)
	promoRepo := promocodes.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	provider, err := payments.NewStripeProvider(stripeClient)
	if err != nil {
		return nil, fmt.Errorf("payment provider: %w", err)
	}
	prices := payments.NewPriceBook(cfg.Stripe)

	identityClient, err := identity.NewClerkClient(cfg.Clerk, nil)
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}
	syncer, err := identity.NewSyncer(identity.SyncerParams{
		Users:   tenantRepo,
		Client:  identityClient,
		Logger:  logg,
		Metrics: metrics.NewIdentityMetrics(reg),
		Timeout: cfg.Clerk.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("identity syncer: %w", err)
	}

	allocator, err := founders.NewAllocator(conn, tenantRepo, cfg.Billing.FounderMaxSlots)
	if err != nil {
		return nil, fmt.Errorf("founder allocator: %w", err)
	}
	if err := allocator.EnsureCounter(ctx); err != nil {
		return nil, fmt.Errorf("founder counter: %w", err)
	}

	promos, err := promocodes.NewService(promocodes.ServiceParams{Repo: promoRepo})
	if err != nil {
		return nil, fmt.Errorf("promo codes: %w", err)
	}
	overview, err := billing.NewService(billing.ServiceParams{Repo: billingRepo})
	if err != nil {
		return nil, fmt.Errorf("billing overview: %w", err)
	}

	rec, err := reconciler.NewService(reconciler.ServiceParams{
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Founders:          allocator,
		Promos:            promos,
		Provider:          provider,
		Prices:            prices,
		Identity:          syncer,
		TransactionRunner: p.DB,
		Logger:            logg,
		FounderExpiry:     cfg.Billing.FounderLockPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Overview:          overview,
		Founders:          allocator,
		Promos:            promos,
		Provider:          provider,
		Prices:            prices,
		Reconciler:        rec,
		Identity:          syncer,
		TransactionRunner: p.DB,
		Logger:            logg,
		SuccessURL:        cfg.Stripe.SuccessURL,
		CancelURL:         cfg.Stripe.CancelURL,
		FounderExpiry:     cfg.Billing.FounderLockPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	teamSvc, err := team.NewService(team.ServiceParams{
		TenantRepo:        tenantRepo,
		TransactionRunner: p.DB,
		Identity:          syncer,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}

	tenantSvc, err := tenants.NewService(tenants.ServiceParams{
		Repo:              tenantRepo,
		TransactionRunner: p.DB,
		Identity:          syncer,
		Logger:            logg,
		TrialPeriod:       cfg.Billing.TrialPeriod(),
	})
	if err != nil {
		return nil, fmt.Errorf("tenants: %w", err)
	}

	webhookMetrics := metrics.NewWebhookMetrics(reg)

	translator, err := reconciler.NewTranslator(provider)
	if err != nil {
		return nil, fmt.Errorf("event translator: %w", err)
	}
	stripeGuard, err := ledger.NewInFlightGuard(p.Redis, cfg.Webhooks.InFlightTTL, stripeGuardScope)
	if err != nil {
		return nil, fmt.Errorf("stripe guard: %w", err)
	}
	stripeHooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Translator: translator,
		Reconciler: rec,
		Ledger:     ledgerRepo,
		Guard:      stripeGuard,
		Metrics:    webhookMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe webhook: %w", err)
	}

	clerkGuard, err := ledger.NewInFlightGuard(p.Redis, cfg.Webhooks.InFlightTTL, clerkGuardScope)
	if err != nil {
		return nil, fmt.Errorf("clerk guard: %w", err)
	}
	clerkHooks, err := clerkwebhook.NewService(clerkwebhook.ServiceParams{
		TenantRepo:        tenantRepo,
		TransactionRunner: p.DB,
		Ledger:            ledgerRepo,
		Guard:             clerkGuard,
		Identity:          syncer,
		Metrics:           webhookMetrics,
		Logger:            logg,
		TrialPeriod:       cfg.Billing.TrialPeriod(),
	})
	if err != nil {
		return nil, fmt.Errorf("clerk webhook: %w", err)
	}
	clerkVerifier, err := clerkwebhook.NewVerifier(cfg.Clerk.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("clerk verifier: %w", err)
	}

	expiry, err := founders.NewExpirySweeper(founders.ExpirySweeperParams{
		Allocator:         allocator,
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Provider:          provider,
		Prices:            prices,
		TransactionRunner: p.DB,
		Identity:          syncer,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("founder expiry: %w", err)
	}
	cronSvc, err := newCron(cfg, logg, p.Redis, reg, expiry, tenantSvc)
	if err != nil {
		return nil, err
	}

	return &Container{
		TenantRepo:    tenantRepo,
		Stripe:        stripeClient,
		Founders:      allocator,
		Identity:      syncer,
		Promos:        promos,
		Reconciler:    rec,
		Checkout:      checkoutSvc,
		Team:          teamSvc,
		Tenants:       tenantSvc,
		StripeWebhook: stripeHooks,
		ClerkWebhook:  clerkHooks,
		ClerkVerifier: clerkVerifier,
		Cron:          cronSvc,
	}, nil
}

func newCron(cfg *config.Config, logg *logger.Logger, store *redis.Client, reg prometheus.Registerer, expiry *founders.ExpirySweeper, tenantSvc *tenants.Service) (*cron.Service, error) {
	founderJob, err := cron.NewFounderExpiryJob(cron.FounderExpiryJobParams{Logger: logg, Sweeper: expiry})
	if err != nil {
		return nil, fmt.Errorf("founder expiry job: %w", err)
	}
	trialJob, err := cron.NewTrialExpiryJob(cron.TrialExpiryJobParams{Logger: logg, Tenants: tenantSvc})
	if err != nil {
		return nil, fmt.Errorf("trial expiry job: %w", err)
	}
	lock, err := cron.NewRedisLock(store, cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	registry, err := cron.NewRegistry(founderJob, trialJob)
	if err != nil {
		return nil, fmt.Errorf("cron registry: %w", err)
	}
	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}
	return svc, nil
}

// Shutdown waits for background identity syncs to drain or the timeout to pass.
func (c *Container) Shutdown(timeout time.Duration) {
	if c == nil || c.Identity == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.Identity.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
