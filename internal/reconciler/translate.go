package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/internal/payments"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// ErrUnhandledEvent is returned for provider event types the reconciler ignores.
var ErrUnhandledEvent = errors.New("unhandled event type")

// Translator turns Stripe webhook events into reconciler events.
type Translator struct {
	provider payments.Provider
}

func NewTranslator(provider payments.Provider) (*Translator, error) {
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment provider required")
	}
	return &Translator{provider: provider}, nil
}

// FromStripeEvent decodes event. Checkout completions fetch the subscription from the
// provider since the session payload only carries its id.
func (t *Translator) FromStripeEvent(ctx context.Context, event *stripe.Event) (Event, error) {
	if event == nil || event.Data == nil {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		if sess.Mode != "" && sess.Mode != stripe.CheckoutSessionModeSubscription {
			return Event{}, ErrUnhandledEvent
		}
		if sess.Subscription == nil || sess.Subscription.ID == "" {
			return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no subscription")
		}
		sub, err := t.provider.GetSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			return Event{}, err
		}
		view := &payments.CheckoutSession{
			ID:             sess.ID,
			PaymentStatus:  string(sess.PaymentStatus),
			SubscriptionID: sess.Subscription.ID,
			Metadata:       sess.Metadata,
		}
		if view.Metadata == nil {
			view.Metadata = map[string]string{}
		}
		if _, ok := view.Metadata[payments.MetadataTenantID]; !ok && sess.ClientReferenceID != "" {
			view.Metadata[payments.MetadataTenantID] = sess.ClientReferenceID
		}
		return CheckoutCompleted(view, sub, SourceWebhook)

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		kind := KindSubscriptionUpdated
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			kind = KindSubscriptionDeleted
		}
		return Event{
			Kind:         kind,
			Source:       SourceWebhook,
			Subscription: payments.SubscriptionFromStripe(&sub),
		}, nil

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		invoice, err := decodeInvoice(event.Data.Raw, event.Type == stripe.EventTypeInvoicePaymentFailed)
		if err != nil {
			return Event{}, err
		}
		if invoice.SubscriptionID == "" {
			return Event{}, ErrUnhandledEvent
		}
		kind := KindInvoicePaid
		if event.Type == stripe.EventTypeInvoicePaymentFailed {
			kind = KindInvoiceFailed
		}
		return Event{Kind: kind, Source: SourceWebhook, Invoice: invoice}, nil
	}
	return Event{}, ErrUnhandledEvent
}

// CheckoutCompleted builds the completion event from a paid session and its subscription.
func CheckoutCompleted(sess *payments.CheckoutSession, sub *payments.Subscription, source Source) (Event, error) {
	if sess == nil || sub == nil {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout session and subscription required")
	}
	meta := sess.Metadata
	if len(meta) == 0 {
		meta = sub.Metadata
	}
	tenantID, err := uuid.Parse(strings.TrimSpace(meta[payments.MetadataTenantID]))
	if err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout metadata has no valid tenant id")
	}

	event := Event{
		Kind:         KindCheckoutCompleted,
		Source:       source,
		TenantID:     tenantID,
		Subscription: sub,
		Founder:      meta[payments.MetadataIsFounder] == "true",
	}
	if raw := strings.TrimSpace(meta[payments.MetadataPromoCodeID]); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout metadata has an invalid promo code id")
		}
		event.PromoCodeID = &id
		if months, err := strconv.Atoi(meta[payments.MetadataPromoMonths]); err == nil && months > 0 {
			event.PromoMonths = months
		}
	}
	return event, nil
}

type invoicePayload struct {
	ID           string          `json:"id"`
	AmountPaid   int64           `json:"amount_paid"`
	AmountDue    int64           `json:"amount_due"`
	Currency     string          `json:"currency"`
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

func decodeInvoice(raw json.RawMessage, failed bool) (*Invoice, error) {
	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	if payload.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}

	subscriptionID := expandableID(payload.Subscription)
	if subscriptionID == "" && payload.Parent != nil && payload.Parent.SubscriptionDetails != nil {
		subscriptionID = expandableID(payload.Parent.SubscriptionDetails.Subscription)
	}

	invoice := &Invoice{
		ID:             payload.ID,
		SubscriptionID: subscriptionID,
		AmountCents:    payload.AmountPaid,
		Currency:       strings.ToLower(payload.Currency),
	}
	if failed {
		invoice.AmountCents = payload.AmountDue
		invoice.FailureReason = "payment failed"
		if payload.LastFinalizationError != nil && payload.LastFinalizationError.Message != "" {
			invoice.FailureReason = payload.LastFinalizationError.Message
		}
	} else if payload.StatusTransitions.PaidAt > 0 {
		paidAt := time.Unix(payload.StatusTransitions.PaidAt, 0).UTC()
		invoice.PaidAt = &paidAt
	}
	return invoice, nil
}

// expandableID reads an expandable field that is either an id string or an object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
