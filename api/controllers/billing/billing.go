package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/autevo/filmtechos-backend/api/controllers/actorcontext"
	"github.com/autevo/filmtechos-backend/api/responses"
	"github.com/autevo/filmtechos-backend/api/validators"
	"github.com/autevo/filmtechos-backend/internal/checkout"
	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

// CheckoutService describes the account billing operations used by the HTTP controllers.
type CheckoutService interface {
	Status(ctx context.Context, actor auth.Actor) (*checkout.StatusView, error)
	CreateSession(ctx context.Context, actor auth.Actor, input checkout.SessionInput) (*checkout.Session, error)
	Sync(ctx context.Context, actor auth.Actor, sessionID string) (*checkout.SyncResult, error)
	UpgradeToFounder(ctx context.Context, actor auth.Actor) (*models.Subscription, error)
	CancelAccount(ctx context.Context, actor auth.Actor, confirmation string) (*checkout.CancelResult, error)
}

type PromoCodeValidator interface {
	Validate(ctx context.Context, code string, interval enums.BillingInterval) (*promocodes.Validation, error)
}

type promoValidateRequest struct {
	Code     string                `json:"code" validate:"required,max=32"`
	Interval enums.BillingInterval `json:"interval" validate:"omitempty,oneof=monthly yearly"`
}

type syncRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

type cancelRequest struct {
	Confirmation string `json:"confirmation" validate:"required,notblank"`
}

type founderUpgradeResponse struct {
	SubscriptionID   string     `json:"subscription_id"`
	StripePriceID    string     `json:"stripe_price_id"`
	IsFounder        bool       `json:"is_founder"`
	FounderExpiresAt *time.Time `json:"founder_expires_at,omitempty"`
}

func BillingStatus(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, err := svc.Status(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PromoCodeValidate reports whether a code can be applied. Unknown or expired codes are
// a successful response with valid=false.
func PromoCodeValidate(svc PromoCodeValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo code service unavailable"))
			return
		}
		if _, err := actorcontext.ResolveActor(r); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload promoValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Validate(ctx, payload.Code, payload.Interval)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CheckoutCreate(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload checkout.SessionInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.CreateSession(ctx, actor, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutSync reconciles a completed checkout session without waiting for the webhook.
func CheckoutSync(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload syncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Sync(ctx, actor, payload.SessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func FounderUpgrade(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.UpgradeToFounder(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, founderUpgradeResponse{
			SubscriptionID:   sub.StripeSubscriptionID,
			StripePriceID:    sub.StripePriceID,
			IsFounder:        sub.IsFounder,
			FounderExpiresAt: sub.FounderExpiresAt,
		})
	}
}

// AccountCancel deletes the tenant after the owner types the confirmation phrase.
func AccountCancel(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.CancelAccount(ctx, actor, payload.Confirmation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
