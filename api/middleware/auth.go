package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/autevo/filmtechos-backend/api/responses"
	pkgAuth "github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

// UserResolver finds the local user linked to an identity provider account.
type UserResolver interface {
	FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

// Auth validates the session bearer token and seeds the request context with the actor.
// Tokens minted before the tenant claims were attached are completed from the users table.
func Auth(cfg config.AuthConfig, users UserResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseSessionToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := pkgAuth.ActorFromClaims(claims)
			if !actor.Complete() && users != nil {
				user, err := users.FindUserByExternalID(r.Context(), actor.ExternalID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user"))
					return
				}
				if user != nil {
					actor.UserID = user.ID
					actor.TenantID = user.TenantID
					actor.Role = user.Role
				}
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				fields := map[string]any{"external_user_id": actor.ExternalID}
				if actor.Complete() {
					fields["user_id"] = actor.UserID.String()
					fields["tenant_id"] = actor.TenantID.String()
					fields["actor_role"] = string(actor.Role)
				}
				if actor.SystemRole != "" {
					fields["system_role"] = actor.SystemRole
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
