package middleware

import (
	"context"

	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/google/uuid"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the authenticated actor on the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

func UserIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	if actor.UserID != uuid.Nil {
		return actor.UserID.String()
	}
	return actor.ExternalID
}

func TenantIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.Complete() {
		return ""
	}
	return actor.TenantID.String()
}
