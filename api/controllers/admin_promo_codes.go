package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/autevo/filmtechos-backend/internal/promocodes"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"

	"github.com/autevo/filmtechos-backend/api/responses"
	"github.com/autevo/filmtechos-backend/api/validators"
)

type AdminPromoCodeService interface {
	Create(ctx context.Context, input promocodes.CreateInput) (*models.PromoCode, error)
	List(ctx context.Context) ([]models.PromoCode, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type promoCodeActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type promoCodeListResponse struct {
	PromoCodes []models.PromoCode `json:"promo_codes"`
}

func AdminPromoCodeCreate(svc AdminPromoCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo code service unavailable"))
			return
		}

		var payload promocodes.CreateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promo)
	}
}

func AdminPromoCodesList(svc AdminPromoCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo code service unavailable"))
			return
		}

		codes, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if codes == nil {
			codes = []models.PromoCode{}
		}
		responses.WriteSuccess(w, promoCodeListResponse{PromoCodes: codes})
	}
}

// AdminPromoCodeSetActive enables or disables a code without deleting its history.
func AdminPromoCodeSetActive(svc AdminPromoCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo code service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, "promoCodeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload promoCodeActiveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetActive(r.Context(), id, *payload.Active); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "active": *payload.Active})
	}
}
