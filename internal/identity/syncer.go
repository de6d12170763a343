package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultSyncTimeout = 15 * time.Second

type userStore interface {
	FindTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error)
}

type SyncerParams struct {
	Users   userStore
	Client  Client
	Logger  *logger.Logger
	Metrics *metrics.IdentityMetrics
	Timeout time.Duration
}

// Syncer propagates tenant and role data into identity provider metadata. Dispatch
// methods never block the caller and never return errors.
type Syncer struct {
	users   userStore
	client  Client
	logg    *logger.Logger
	metrics *metrics.IdentityMetrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewSyncer(params SyncerParams) (*Syncer, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user store required")
	}
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Syncer{
		users:   params.Users,
		client:  params.Client,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
	}, nil
}

// Dispatch syncs a single user in the background.
func (s *Syncer) Dispatch(ctx context.Context, userID uuid.UUID) {
	s.goSafe(ctx, "sync_user", func(ctx context.Context) error {
		return s.SyncUser(ctx, userID)
	})
}

// DispatchTenant syncs every linked user of the tenant in the background.
func (s *Syncer) DispatchTenant(ctx context.Context, tenantID uuid.UUID) {
	s.goSafe(ctx, "sync_tenant", func(ctx context.Context) error {
		return s.SyncTenant(ctx, tenantID)
	})
}

// DispatchDeletes removes identity provider users in the background.
func (s *Syncer) DispatchDeletes(ctx context.Context, externalIDs []string) {
	if len(externalIDs) == 0 {
		return
	}
	ids := append([]string(nil), externalIDs...)
	s.goSafe(ctx, "delete_users", func(ctx context.Context) error {
		var errs error
		for _, id := range ids {
			if err := s.client.DeleteUser(ctx, id); err != nil {
				s.metrics.IncFailure("delete_user")
				errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", id, err))
			}
		}
		return errs
	})
}

// DispatchInvitation sends a sign-up invitation in the background.
func (s *Syncer) DispatchInvitation(ctx context.Context, params InvitationParams) {
	s.goSafe(ctx, "create_invitation", func(ctx context.Context) error {
		if err := s.client.CreateInvitation(ctx, params); err != nil {
			s.metrics.IncFailure("create_invitation")
			return err
		}
		return nil
	})
}

// Wait blocks until in-flight dispatches finish.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) SyncUser(ctx context.Context, userID uuid.UUID) error {
	u, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if u.ExternalAuthID == nil || *u.ExternalAuthID == "" {
		return nil
	}
	tenant, err := s.users.FindTenant(ctx, u.TenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	return s.push(ctx, tenant, u)
}

func (s *Syncer) SyncTenant(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := s.users.FindTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	users, err := s.users.ListUsers(ctx, tenantID)
	if err != nil {
		return err
	}
	var errs error
	for i := range users {
		if users[i].ExternalAuthID == nil || *users[i].ExternalAuthID == "" {
			continue
		}
		errs = multierr.Append(errs, s.push(ctx, tenant, &users[i]))
	}
	return errs
}

func (s *Syncer) push(ctx context.Context, tenant *models.Tenant, u *models.User) error {
	err := s.client.UpdatePublicMetadata(ctx, *u.ExternalAuthID, MetadataFor(tenant, u))
	if err != nil {
		s.metrics.IncFailure("update_metadata")
		return fmt.Errorf("user %s: %w", u.ID, err)
	}
	return nil
}

// MetadataFor builds the metadata cached for u.
func MetadataFor(tenant *models.Tenant, u *models.User) Metadata {
	return Metadata{
		TenantID:     tenant.ID.String(),
		Role:         u.Role.String(),
		UserID:       u.ID.String(),
		TenantStatus: tenant.Status.String(),
		IsFounder:    tenant.IsFoundingMember,
	}
}

func (s *Syncer) goSafe(ctx context.Context, op string, fn func(ctx context.Context) error) {
	detached := s.logg.WithField(s.logg.Detach(ctx), "identity_op", op)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.IncFailure(op)
				s.logg.Error(detached, "identity.sync_panic", fmt.Errorf("panic: %v", r))
			}
		}()

		runCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		if err := fn(runCtx); err != nil {
			s.logg.Error(detached, "identity.sync_failed", err)
			return
		}
		s.logg.Debug(detached, "identity.sync_completed")
	}()
}
