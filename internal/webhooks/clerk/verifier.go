package clerkwebhook

import (
	"errors"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
)

// Verifier checks the Svix signature headers of an identity provider delivery.
type Verifier interface {
	Verify(payload []byte, headers http.Header) error
}

// NewVerifier returns a Svix verifier for the endpoint signing secret (whsec_...).
func NewVerifier(secret string) (Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("clerk webhook secret is required")
	}
	return svix.NewWebhook(secret)
}
