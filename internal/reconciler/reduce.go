package reconciler

import (
	"errors"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/google/uuid"
)

var (
	ErrMissingTenant       = errors.New("checkout event has no tenant")
	ErrMissingSubscription = errors.New("event has no subscription payload")
	ErrMissingInvoice      = errors.New("invoice event has no invoice payload")
	ErrUnknownKind         = errors.New("unknown event kind")
)

// State is the persisted view Reduce starts from.
type State struct {
	Tenant       *models.Tenant
	Subscription *models.Subscription
	Payment      *models.SubscriptionPayment
}

// Options carries the clock and policy inputs of Reduce.
type Options struct {
	Now time.Time
	// FounderExpiry returns the end of the founder price lock for a grant at the given time.
	FounderExpiry func(time.Time) time.Time
}

// Effects are the side counters and notifications implied by a transition.
type Effects struct {
	GrantFounder  bool
	RevokeFounder bool
	ConsumePromo  *uuid.UUID
	SyncIdentity  bool
}

// Result is the next state. A nil Subscription means nothing is written.
type Result struct {
	TenantStatus *enums.TenantStatus
	Subscription *models.Subscription
	Created      bool
	Payment      *models.SubscriptionPayment
	Effects      Effects
	Skipped      string
}

// Reduce computes the transition for event without touching storage. It never
// mutates state.
func Reduce(state State, event Event, opts Options) (Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	switch event.Kind {
	case KindCheckoutCompleted:
		return reduceCheckoutCompleted(state, event, opts)
	case KindSubscriptionUpdated:
		return reduceSubscriptionUpdated(state, event)
	case KindSubscriptionDeleted:
		return reduceSubscriptionDeleted(state, event, opts)
	case KindInvoicePaid:
		return reduceInvoice(state, event, opts, true)
	case KindInvoiceFailed:
		return reduceInvoice(state, event, opts, false)
	default:
		return Result{}, ErrUnknownKind
	}
}

// TenantStatusFor maps a provider subscription status to the tenant status.
func TenantStatusFor(status enums.SubscriptionStatus) enums.TenantStatus {
	switch status {
	case enums.SubscriptionStatusActive:
		return enums.TenantStatusActive
	case enums.SubscriptionStatusPastDue:
		return enums.TenantStatusPastDue
	case enums.SubscriptionStatusCanceled:
		return enums.TenantStatusCanceled
	default:
		return enums.TenantStatusSuspended
	}
}

func reduceCheckoutCompleted(state State, event Event, opts Options) (Result, error) {
	if event.TenantID == uuid.Nil {
		return Result{}, ErrMissingTenant
	}
	if event.Subscription == nil || event.Subscription.ID == "" {
		return Result{}, ErrMissingSubscription
	}

	var next models.Subscription
	created := state.Subscription == nil
	if created {
		next = models.Subscription{TenantID: event.TenantID}
	} else {
		next = *state.Subscription
	}
	applyProvider(&next, event)

	var effects Effects
	wasFounder := !created && state.Subscription.IsFounder
	if event.Founder && !wasFounder {
		effects.GrantFounder = true
		next.IsFounder = true
		if opts.FounderExpiry != nil {
			expires := opts.FounderExpiry(opts.Now)
			next.FounderExpiresAt = &expires
		}
	}

	if event.PromoCodeID != nil && !samePromo(state.Subscription, *event.PromoCodeID) {
		id := *event.PromoCodeID
		effects.ConsumePromo = &id
		next.PromoCodeID = &id
		next.PromoMonthsRemaining = event.PromoMonths
	}
	effects.SyncIdentity = true

	status := enums.TenantStatusActive
	return Result{
		TenantStatus: &status,
		Subscription: &next,
		Created:      created,
		Effects:      effects,
	}, nil
}

func reduceSubscriptionUpdated(state State, event Event) (Result, error) {
	if event.Subscription == nil {
		return Result{}, ErrMissingSubscription
	}
	if state.Subscription == nil {
		return Result{Skipped: "subscription not found"}, nil
	}
	next := *state.Subscription
	applyProvider(&next, event)

	var effects Effects
	if next.Status == enums.SubscriptionStatusCanceled && next.IsFounder {
		effects.RevokeFounder = true
		next.IsFounder = false
		next.FounderExpiresAt = nil
	}

	status := TenantStatusFor(next.Status)
	effects.SyncIdentity = statusChanged(state.Tenant, status) || effects.RevokeFounder
	return Result{
		TenantStatus: &status,
		Subscription: &next,
		Effects:      effects,
	}, nil
}

func reduceSubscriptionDeleted(state State, event Event, opts Options) (Result, error) {
	if event.Subscription == nil {
		return Result{}, ErrMissingSubscription
	}
	if state.Subscription == nil {
		return Result{Skipped: "subscription not found"}, nil
	}
	next := *state.Subscription
	applyProvider(&next, event)
	next.Status = enums.SubscriptionStatusCanceled
	if next.CanceledAt == nil {
		canceledAt := opts.Now
		next.CanceledAt = &canceledAt
	}

	var effects Effects
	if next.IsFounder {
		effects.RevokeFounder = true
		next.IsFounder = false
		next.FounderExpiresAt = nil
	}

	status := enums.TenantStatusCanceled
	effects.SyncIdentity = statusChanged(state.Tenant, status) || effects.RevokeFounder
	return Result{
		TenantStatus: &status,
		Subscription: &next,
		Effects:      effects,
	}, nil
}

func reduceInvoice(state State, event Event, opts Options, paid bool) (Result, error) {
	if event.Invoice == nil || event.Invoice.ID == "" {
		return Result{}, ErrMissingInvoice
	}
	if state.Subscription == nil {
		return Result{Skipped: "subscription not found"}, nil
	}
	inv := event.Invoice
	next := *state.Subscription

	payment := &models.SubscriptionPayment{
		SubscriptionID:  next.ID,
		StripeInvoiceID: inv.ID,
		AmountCents:     inv.AmountCents,
		Currency:        inv.Currency,
	}
	if payment.Currency == "" {
		payment.Currency = "brl"
	}

	var status enums.TenantStatus
	if paid {
		payment.Status = enums.PaymentStatusSucceeded
		payment.PaidAt = inv.PaidAt
		if payment.PaidAt == nil {
			paidAt := opts.Now
			payment.PaidAt = &paidAt
		}
		alreadyCounted := state.Payment != nil && state.Payment.Status == enums.PaymentStatusSucceeded
		if next.PromoMonthsRemaining > 0 && !alreadyCounted {
			next.PromoMonthsRemaining--
		}
		if next.Status == enums.SubscriptionStatusPastDue || next.Status == enums.SubscriptionStatusUnpaid {
			next.Status = enums.SubscriptionStatusActive
		}
		status = enums.TenantStatusActive
	} else {
		payment.Status = enums.PaymentStatusFailed
		if inv.FailureReason != "" {
			reason := inv.FailureReason
			payment.FailureReason = &reason
		}
		next.Status = enums.SubscriptionStatusPastDue
		status = enums.TenantStatusPastDue
	}

	return Result{
		TenantStatus: &status,
		Subscription: &next,
		Payment:      payment,
		Effects:      Effects{SyncIdentity: statusChanged(state.Tenant, status)},
	}, nil
}

func applyProvider(next *models.Subscription, event Event) {
	sub := event.Subscription
	next.StripeSubscriptionID = sub.ID
	if sub.PriceID != "" {
		next.StripePriceID = sub.PriceID
	}
	if sub.ItemID != "" {
		itemID := sub.ItemID
		next.StripeItemID = &itemID
	}
	if sub.Status != "" {
		next.Status = sub.Status
	}
	if sub.Interval != "" {
		next.BillingInterval = sub.Interval
	}
	next.CurrentPeriodStart = sub.CurrentPeriodStart
	next.CurrentPeriodEnd = sub.CurrentPeriodEnd
	next.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	next.CanceledAt = sub.CanceledAt
}

func samePromo(existing *models.Subscription, id uuid.UUID) bool {
	return existing != nil && existing.PromoCodeID != nil && *existing.PromoCodeID == id
}

func statusChanged(tenant *models.Tenant, status enums.TenantStatus) bool {
	return tenant == nil || tenant.Status != status
}
