package actorcontext

import (
	"net/http"

	"github.com/autevo/filmtechos-backend/api/middleware"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
)

// ResolveActor returns the authenticated caller or an unauthorized error.
func ResolveActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// ResolveTenantActor additionally requires the caller to belong to a tenant.
func ResolveTenantActor(r *http.Request) (auth.Actor, error) {
	actor, err := ResolveActor(r)
	if err != nil {
		return auth.Actor{}, err
	}
	if !actor.Complete() {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "tenant membership required")
	}
	return actor, nil
}
