package reconciler

import (
	"time"

	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/google/uuid"
)

// Kind names a subscription lifecycle event.
type Kind string

const (
	KindCheckoutCompleted   Kind = "checkout.completed"
	KindSubscriptionUpdated Kind = "subscription.updated"
	KindSubscriptionDeleted Kind = "subscription.deleted"
	KindInvoicePaid         Kind = "invoice.paid"
	KindInvoiceFailed       Kind = "invoice.failed"
)

// Source names the writer that observed the event.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceSync    Source = "sync"
)

// Event is a provider-neutral lifecycle event fed to Reduce.
type Event struct {
	Kind   Kind
	Source Source

	// TenantID identifies the tenant for checkout completions.
	TenantID uuid.UUID
	// Subscription is the provider view for checkout and subscription events.
	Subscription *payments.Subscription
	// Founder is set when the checkout was started at the founder price.
	Founder bool
	// PromoCodeID and PromoMonths describe the discount applied at checkout.
	PromoCodeID *uuid.UUID
	PromoMonths int

	Invoice *Invoice
}

// Invoice carries the fields of a paid or failed subscription invoice.
type Invoice struct {
	ID             string
	SubscriptionID string
	AmountCents    int64
	Currency       string
	PaidAt         *time.Time
	FailureReason  string
}

// ExternalSubscriptionID returns the provider subscription the event refers to.
func (e Event) ExternalSubscriptionID() string {
	if e.Subscription != nil && e.Subscription.ID != "" {
		return e.Subscription.ID
	}
	if e.Invoice != nil {
		return e.Invoice.SubscriptionID
	}
	return ""
}
