// Package stripe configures the Stripe SDK and verifies inbound webhook payloads.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

// Mode is the Stripe account mode the service talks to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	ErrMissingAPIKey        = errors.New("stripe api key is required")
	ErrMissingWebhookSecret = errors.New("stripe webhook secret is required")
	ErrModeMismatch         = errors.New("stripe event livemode does not match configured mode")
)

// Client holds the validated configuration. Construction sets the package-level
// API key used by the stripe-go resource packages.
type Client struct {
	mode          Mode
	webhookSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	if !hasAnyPrefix(key, keyPrefixes[mode]) {
		return nil, fmt.Errorf("stripe %s mode requires a key starting with %s", mode, strings.Join(keyPrefixes[mode], " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "filmtechos-backend"})

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe.configured")
	}
	return &Client{mode: mode, webhookSecret: secret}, nil
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// ConstructEvent checks the Stripe-Signature header and decodes the event. Events
// pinned to another API version are accepted since handlers read fields selectively.
// A live event delivered to a test deployment, or the reverse, is rejected.
func (c *Client) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || c.webhookSecret == "" {
		return stripe.Event{}, ErrMissingWebhookSecret
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, err
	}
	if event.Livemode != (c.mode == ModeLive) {
		return stripe.Event{}, ErrModeMismatch
	}
	return event, nil
}

func parseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return mode, nil
	default:
		return "", fmt.Errorf("stripe mode must be %q or %q, got %q", ModeTest, ModeLive, raw)
	}
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
