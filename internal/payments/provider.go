package payments

import (
	"context"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Metadata keys written on checkout sessions and their subscriptions.
const (
	MetadataTenantID        = "tenant_id"
	MetadataIsFounder       = "is_founder"
	MetadataPromoCodeID     = "promo_code_id"
	MetadataPromoMonths     = "promo_months"
	MetadataBillingInterval = "billing_interval"
)

// PaymentStatusPaid is the checkout session payment status that allows reconciliation.
const PaymentStatusPaid = "paid"

// Provider is the payment provider surface used by billing flows.
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, params PriceChangeParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	CreateCoupon(ctx context.Context, params CouponParams) (string, error)
}

type CustomerParams struct {
	Email    string
	Name     string
	TenantID string
}

type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	CouponID   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider-neutral view of a hosted checkout.
type CheckoutSession struct {
	ID             string
	URL            string
	PaymentStatus  string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// Paid reports whether the customer completed payment.
func (c *CheckoutSession) Paid() bool {
	return c != nil && c.PaymentStatus == PaymentStatusPaid
}

// Subscription is the provider-neutral view of a recurring subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	ItemID             string
	Status             enums.SubscriptionStatus
	Interval           enums.BillingInterval
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

type PriceChangeParams struct {
	SubscriptionID string
	ItemID         string
	PriceID        string
	Prorate        bool
}

type CouponParams struct {
	PercentOff     decimal.Decimal
	DurationMonths int
	Name           string
	PromoCodeID    string
}

// Unavailable wraps a provider failure as the dependency error surfaced to callers.
func Unavailable(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable").
		WithDetails(map[string]any{"operation": op})
}
