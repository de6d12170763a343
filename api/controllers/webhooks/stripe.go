package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/autevo/filmtechos-backend/api/responses"
	stripewebhook "github.com/autevo/filmtechos-backend/internal/webhooks/stripe"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

// DefaultMaxBodyBytes caps webhook payloads when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) (stripewebhook.Outcome, error)
}

// StripeEventVerifier checks the Stripe-Signature header against the raw payload.
type StripeEventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// StripeWebhook verifies and dispatches Stripe billing events.
func StripeWebhook(svc StripeWebhookService, verifier StripeEventVerifier, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := readBody(w, r, maxBody)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookAck{Received: true, Outcome: string(outcome)})
	}
}

func readBody(w http.ResponseWriter, r *http.Request, maxBody int64) ([]byte, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payload, nil
}
