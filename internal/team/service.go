package team

import (
	"context"
	"strings"

	"github.com/autevo/filmtechos-backend/internal/identity"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type identityDispatcher interface {
	Dispatch(ctx context.Context, userID uuid.UUID)
	DispatchInvitation(ctx context.Context, params identity.InvitationParams)
}

type ServiceParams struct {
	TenantRepo        tenants.Repository
	TransactionRunner txRunner
	Identity          identityDispatcher
	Logger            *logger.Logger
}

// Service manages a tenant's team.
type Service struct {
	repo     tenants.Repository
	tx       txRunner
	identity identityDispatcher
	logg     *logger.Logger
}

// InviteInput captures a team invitation.
type InviteInput struct {
	Email string         `json:"email" validate:"required,email,max=254"`
	Name  string         `json:"name" validate:"omitempty,max=120"`
	Role  enums.UserRole `json:"role" validate:"required,oneof=ADMIN MEMBER"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TenantRepo == nil {
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
	return &Service{
		repo:     params.TenantRepo,
		tx:       params.TransactionRunner,
		identity: params.Identity,
		logg:     params.Logger,
	}, nil
}

// List returns the members of the actor's tenant.
func (s *Service) List(ctx context.Context, actor auth.Actor) ([]MemberDTO, error) {
	if !actor.Complete() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant membership required")
	}
	users, err := s.repo.ListUsers(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list team")
	}
	out := make([]MemberDTO, 0, len(users))
	for i := range users {
		out = append(out, *ToDTO(&users[i]))
	}
	return out, nil
}

// Invite pre-provisions an INVITED user and sends an identity provider invitation
// carrying the internal ids, so the sign-up links back to this row.
func (s *Service) Invite(ctx context.Context, actor auth.Actor, input InviteInput) (*MemberDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if input.Role == enums.UserRoleOwner || !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}

	var invited *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindUserByEmail(ctx, actor.TenantID, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user already on the team")
		}
		invited = &models.User{
			TenantID: actor.TenantID,
			Email:    email,
			Name:     strings.TrimSpace(input.Name),
			Role:     input.Role,
			Status:   enums.UserStatusInvited,
		}
		return repo.CreateUser(ctx, invited)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "user already on the team")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invited user")
	}

	s.identity.DispatchInvitation(ctx, identity.InvitationParams{
		Email:          invited.Email,
		InternalUserID: invited.ID.String(),
		TenantID:       actor.TenantID.String(),
		Role:           string(invited.Role),
	})
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id":  actor.TenantID.String(),
		"invited_id": invited.ID.String(),
		"role":       string(invited.Role),
	}), "team.user_invited")
	return ToDTO(invited), nil
}

// ChangeRole updates a member's role. The last owner keeps the owner role.
func (s *Service) ChangeRole(ctx context.Context, actor auth.Actor, userID uuid.UUID, role enums.UserRole) (*MemberDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if role == enums.UserRoleOwner && actor.Role != enums.UserRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only owners can grant the owner role")
	}

	var updated *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockTenant(ctx, actor.TenantID); err != nil {
			return err
		}
		target, err := repo.FindUser(ctx, userID)
		if err != nil {
			return err
		}
		if target == nil || target.TenantID != actor.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if target.Role == role {
			updated = target
			return nil
		}
		if target.Role == enums.UserRoleOwner {
			if actor.Role != enums.UserRoleOwner {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only owners can change an owner")
			}
			owners, err := repo.CountOwners(ctx, actor.TenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "tenant must keep at least one owner")
			}
		}
		target.Role = role
		if err := repo.UpdateUser(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "change role")
	}

	s.identity.Dispatch(ctx, updated.ID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": actor.TenantID.String(),
		"target_id": updated.ID.String(),
		"role":      string(updated.Role),
	}), "team.role_changed")
	return ToDTO(updated), nil
}

func requireManager(actor auth.Actor) error {
	if !actor.Complete() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "tenant membership required")
	}
	if actor.Role != enums.UserRoleOwner && actor.Role != enums.UserRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "team role required")
	}
	return nil
}
