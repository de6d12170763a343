package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"

	"github.com/autevo/filmtechos-backend/api/responses"
	"github.com/autevo/filmtechos-backend/api/validators"
)

type AdminTenantService interface {
	Provision(ctx context.Context, input tenants.ProvisionInput) (*tenants.TenantDetail, error)
	List(ctx context.Context, params tenants.ListParams) (*tenants.ListResult, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*tenants.TenantDetail, error)
	SetStatus(ctx context.Context, tenantID uuid.UUID, status enums.TenantStatus) (*models.Tenant, error)
}

type tenantStatusRequest struct {
	Status enums.TenantStatus `json:"status" validate:"required,oneof=ACTIVE SUSPENDED CANCELED"`
}

// AdminTenantProvision creates a trial tenant and invites its owner.
func AdminTenantProvision(svc AdminTenantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant service unavailable"))
			return
		}

		var payload tenants.ProvisionInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Provision(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// AdminTenantsList returns a page of tenants, optionally filtered by status.
func AdminTenantsList(svc AdminTenantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant service unavailable"))
			return
		}

		page, err := validators.ParsePageQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), tenants.ListParams{
			Status: enums.TenantStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
			Limit:  page.Limit,
			Cursor: page.Cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminTenantDetail(svc AdminTenantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant service unavailable"))
			return
		}

		tenantID, err := validators.PathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// AdminTenantStatus overrides a tenant's access state.
func AdminTenantStatus(svc AdminTenantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant service unavailable"))
			return
		}

		tenantID, err := validators.PathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload tenantStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tenant, err := svc.SetStatus(r.Context(), tenantID, payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tenant)
	}
}
