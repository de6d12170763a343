package tenants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/internal/identity"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/pagination"
	"github.com/autevo/filmtechos-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// TrialExpiryJobName identifies the trial sweep in logs, metrics and reports.
const TrialExpiryJobName = "trial-expiry"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type identityDispatcher interface {
	DispatchTenant(ctx context.Context, tenantID uuid.UUID)
	DispatchInvitation(ctx context.Context, params identity.InvitationParams)
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Identity          identityDispatcher
	Logger            *logger.Logger
	TrialPeriod       time.Duration
	SweepLimit        int
	Now               func() time.Time
}

// Service holds the platform-admin tenant actions and the trial sweep.
type Service struct {
	repo        Repository
	tx          txRunner
	identity    identityDispatcher
	logg        *logger.Logger
	trialPeriod time.Duration
	sweepLimit  int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity syncer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.Repo,
		tx:          params.TransactionRunner,
		identity:    params.Identity,
		logg:        params.Logger,
		trialPeriod: params.TrialPeriod,
		sweepLimit:  params.SweepLimit,
		now:         now,
	}, nil
}

// ProvisionInput creates a tenant on behalf of a prospective owner.
type ProvisionInput struct {
	Name       string `json:"name" validate:"required,notblank,max=160"`
	OwnerEmail string `json:"owner_email" validate:"required,email,max=254"`
	OwnerName  string `json:"owner_name" validate:"omitempty,max=120"`
}

// TenantDetail is the admin view of a tenant.
type TenantDetail struct {
	Tenant *models.Tenant `json:"tenant"`
	Users  []models.User  `json:"users"`
}

// Provision creates a TRIAL tenant with an INVITED owner and sends the owner an invitation.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (*TenantDetail, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.OwnerEmail))
	if name == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and owner email are required")
	}

	trialEnds := s.now().UTC().Add(s.trialPeriod)
	tenant := &models.Tenant{
		Name:        name,
		Status:      enums.TenantStatusTrial,
		TrialEndsAt: &trialEnds,
	}
	owner := &models.User{
		Email:  email,
		Name:   strings.TrimSpace(input.OwnerName),
		Role:   enums.UserRoleOwner,
		Status: enums.UserStatusInvited,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		owner.TenantID = tenant.ID
		return repo.CreateUser(ctx, owner)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "tenant or owner already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision tenant")
	}

	s.identity.DispatchInvitation(ctx, identity.InvitationParams{
		Email:          owner.Email,
		InternalUserID: owner.ID.String(),
		TenantID:       tenant.ID.String(),
		Role:           string(owner.Role),
	})
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenant.ID.String(),
		"owner_id":  owner.ID.String(),
	}), "tenants.provisioned")
	return &TenantDetail{Tenant: tenant, Users: []models.User{*owner}}, nil
}

// ListParams are the admin listing inputs.
type ListParams struct {
	Status enums.TenantStatus
	Limit  int
	Cursor string
}

// ListResult is one page of tenants.
type ListResult struct {
	Tenants []models.Tenant `json:"tenants"`
	Cursor  string          `json:"cursor"`
}

// List pages through tenants, newest first.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant status")
	}
	query := ListTenantsParams{Status: params.Status, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.ListTenants(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tenants")
	}
	result := &ListResult{Tenants: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Get returns a tenant with its users.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID) (*TenantDetail, error) {
	tenant, err := s.repo.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	users, err := s.repo.ListUsers(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	return &TenantDetail{Tenant: tenant, Users: users}, nil
}

// SetStatus applies a manual status override. Only ACTIVE, SUSPENDED and CANCELED are accepted.
func (s *Service) SetStatus(ctx context.Context, tenantID uuid.UUID, status enums.TenantStatus) (*models.Tenant, error) {
	switch status {
	case enums.TenantStatusActive, enums.TenantStatusSuspended, enums.TenantStatusCanceled:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be ACTIVE, SUSPENDED or CANCELED").
			WithDetails(map[string]any{"status": string(status)})
	}

	var updated *models.Tenant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenant, err := repo.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		if tenant.Status != status {
			if err := repo.UpdateTenantStatus(ctx, tenantID, status); err != nil {
				return err
			}
			tenant.Status = status
		}
		updated = tenant
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update tenant status")
	}

	s.identity.DispatchTenant(ctx, tenantID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"status":    string(status),
	}), "tenants.status_overridden")
	return updated, nil
}

// ExpireTrials suspends trial tenants past their trial end that never reached an entitled
// subscription. Each tenant is handled in its own transaction; failures are collected.
func (s *Service) ExpireTrials(ctx context.Context) (*types.SweepReport, error) {
	ctx = s.logg.WithField(ctx, "job", TrialExpiryJobName)
	candidates, err := s.repo.ListExpiredTrials(ctx, s.now().UTC(), s.sweepLimit)
	if err != nil {
		return nil, fmt.Errorf("list expired trials: %w", err)
	}

	report := &types.SweepReport{Job: TrialExpiryJobName, Scanned: len(candidates), Failures: []string{}}
	var errs error
	for i := range candidates {
		suspended, err := s.expireTrial(ctx, candidates[i].ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", candidates[i].ID, err))
			report.Fail(fmt.Sprintf("%s: %v", candidates[i].ID, err))
			continue
		}
		if suspended {
			report.Migrated++
			s.identity.DispatchTenant(ctx, candidates[i].ID)
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"scanned":   report.Scanned,
		"suspended": report.Migrated,
		"failures":  len(report.Failures),
	}), "tenants.trial_sweep_complete")
	return report, errs
}

func (s *Service) expireTrial(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	suspended := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenant, err := repo.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil || tenant.Status != enums.TenantStatusTrial {
			return nil
		}
		entitled, err := repo.HasEntitledSubscription(ctx, tenantID)
		if err != nil {
			return err
		}
		if entitled {
			return nil
		}
		if err := repo.UpdateTenantStatus(ctx, tenantID, enums.TenantStatusSuspended); err != nil {
			return err
		}
		suspended = true
		return nil
	})
	return suspended, err
}
