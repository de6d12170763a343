package webhooks

import (
	"context"
	"net/http"

	"github.com/autevo/filmtechos-backend/api/responses"
	clerkwebhook "github.com/autevo/filmtechos-backend/internal/webhooks/clerk"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

const svixIDHeader = "svix-id"

type ClerkWebhookService interface {
	HandleEvent(ctx context.Context, eventID string, payload []byte) (clerkwebhook.Outcome, error)
}

// ClerkWebhook verifies Svix-signed identity events and provisions users.
func ClerkWebhook(svc ClerkWebhookService, verifier clerkwebhook.Verifier, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := readBody(w, r, maxBody)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := r.Header.Get(svixIDHeader)
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "svix headers missing"))
			return
		}
		if err := verifier.Verify(payload, r.Header); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook signature"))
			return
		}

		outcome, err := svc.HandleEvent(ctx, eventID, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookAck{Received: true, Outcome: string(outcome)})
	}
}
