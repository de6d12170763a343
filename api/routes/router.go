package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autevo/filmtechos-backend/api/controllers"
	billingcontrollers "github.com/autevo/filmtechos-backend/api/controllers/billing"
	teamcontrollers "github.com/autevo/filmtechos-backend/api/controllers/team"
	webhookcontrollers "github.com/autevo/filmtechos-backend/api/controllers/webhooks"
	"github.com/autevo/filmtechos-backend/api/middleware"
	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	clerkwebhook "github.com/autevo/filmtechos-backend/internal/webhooks/clerk"
	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/redis"
)

// Params carries the collaborators mounted on the router. Nil services answer with a 500.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	Readiness map[string]controllers.Pinger
	Metrics   prometheus.Gatherer

	IdempotencyStore redis.IdempotencyStore
	RateLimitStore   middleware.RateLimiterStore
	Users            middleware.UserResolver

	Checkout billingcontrollers.CheckoutService
	Promos   billingcontrollers.PromoCodeValidator
	Team     teamcontrollers.Service

	AdminTenants    controllers.AdminTenantService
	AdminPromoCodes controllers.AdminPromoCodeService
	FounderSlots    controllers.FounderSlots
	Cron            controllers.CronTrigger

	StripeWebhook  webhookcontrollers.StripeWebhookService
	StripeVerifier webhookcontrollers.StripeEventVerifier
	ClerkWebhook   webhookcontrollers.ClerkWebhookService
	ClerkVerifier  clerkwebhook.Verifier
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	publicPolicy := middleware.NewRateLimitPolicy("public", cfg.RateLimit.Window, cfg.RateLimit.PublicIPLimit, 0)
	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.APIIPLimit, cfg.RateLimit.APITenantLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Readiness, logg))
	})
	r.Handle("/metrics", metricsHandler(p.Metrics))

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.RateLimit(publicPolicy, p.RateLimitStore, logg))
		r.Get("/founders", controllers.PublicFounderSlots(p.FounderSlots, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeVerifier, cfg.Webhooks.MaxBodyBytes, logg))
		r.Post("/clerk", webhookcontrollers.ClerkWebhook(p.ClerkWebhook, p.ClerkVerifier, cfg.Webhooks.MaxBodyBytes, logg))
	})

	r.Route("/api/v1/cron", func(r chi.Router) {
		r.Use(middleware.CronSecret(cfg.Cron.Secret, logg))
		r.Post("/founder-expiry", controllers.CronSweep(p.Cron, founders.ExpiryJobName, logg))
		r.Post("/trial-expiry", controllers.CronSweep(p.Cron, tenants.TrialExpiryJobName, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, p.Users, logg))
		r.Use(middleware.RateLimit(apiPolicy, p.RateLimitStore, logg))
		r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

		r.Route("/api/v1/billing", func(r chi.Router) {
			r.Get("/subscription", billingcontrollers.BillingStatus(p.Checkout, logg))
			r.Post("/promo-codes/validate", billingcontrollers.PromoCodeValidate(p.Promos, logg))
			r.Post("/sync", billingcontrollers.CheckoutSync(p.Checkout, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTenantRoles(logg, enums.UserRoleOwner, enums.UserRoleAdmin))
				r.Post("/checkout", billingcontrollers.CheckoutCreate(p.Checkout, logg))
				r.Post("/founder/upgrade", billingcontrollers.FounderUpgrade(p.Checkout, logg))
			})
			r.With(middleware.RequireTenantRoles(logg, enums.UserRoleOwner)).
				Post("/cancel", billingcontrollers.AccountCancel(p.Checkout, logg))
		})

		r.Route("/api/v1/team", func(r chi.Router) {
			r.Use(middleware.RequireTenant(logg))
			r.Get("/", teamcontrollers.TeamList(p.Team, logg))
			r.Post("/invites", teamcontrollers.TeamInvite(p.Team, logg))
			r.Patch("/{userId}/role", teamcontrollers.TeamChangeRole(p.Team, logg))
		})

		r.Route("/api/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireSystemAdmin(logg))

			r.Route("/tenants", func(r chi.Router) {
				r.Post("/", controllers.AdminTenantProvision(p.AdminTenants, logg))
				r.Get("/", controllers.AdminTenantsList(p.AdminTenants, logg))
				r.Get("/{tenantId}", controllers.AdminTenantDetail(p.AdminTenants, logg))
				r.Patch("/{tenantId}/status", controllers.AdminTenantStatus(p.AdminTenants, logg))
			})
			r.Route("/founders", func(r chi.Router) {
				r.Get("/", controllers.AdminFounderSnapshot(p.FounderSlots, logg))
				r.Post("/recount", controllers.AdminFounderRecount(p.FounderSlots, logg))
			})
			r.Route("/promo-codes", func(r chi.Router) {
				r.Post("/", controllers.AdminPromoCodeCreate(p.AdminPromoCodes, logg))
				r.Get("/", controllers.AdminPromoCodesList(p.AdminPromoCodes, logg))
				r.Patch("/{promoCodeId}", controllers.AdminPromoCodeSetActive(p.AdminPromoCodes, logg))
			})
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
