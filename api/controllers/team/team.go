package team

import (
	"context"
	"net/http"

	"github.com/autevo/filmtechos-backend/api/controllers/actorcontext"
	"github.com/autevo/filmtechos-backend/api/responses"
	"github.com/autevo/filmtechos-backend/api/validators"
	teamsvc "github.com/autevo/filmtechos-backend/internal/team"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/google/uuid"
)

// Service describes the team operations used by the HTTP controllers.
type Service interface {
	List(ctx context.Context, actor auth.Actor) ([]teamsvc.MemberDTO, error)
	Invite(ctx context.Context, actor auth.Actor, input teamsvc.InviteInput) (*teamsvc.MemberDTO, error)
	ChangeRole(ctx context.Context, actor auth.Actor, userID uuid.UUID, role enums.UserRole) (*teamsvc.MemberDTO, error)
}

type changeRoleRequest struct {
	Role enums.UserRole `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER"`
}

type memberListResponse struct {
	Members []teamsvc.MemberDTO `json:"members"`
}

func TeamList(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "team service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		members, err := svc.List(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if members == nil {
			members = []teamsvc.MemberDTO{}
		}
		responses.WriteSuccess(w, memberListResponse{Members: members})
	}
}

func TeamInvite(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "team service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload teamsvc.InviteInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.Invite(ctx, actor, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, member)
	}
}

func TeamChangeRole(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "team service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveTenantActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload changeRoleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.ChangeRole(ctx, actor, userID, payload.Role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, member)
	}
}
