package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	pkgstripe "github.com/autevo/filmtechos-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/coupon"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"
)

type stripeProvider struct{}

// NewStripeProvider returns the Stripe-backed Provider. The client must have been
// initialised so the package-level API key is set.
func NewStripeProvider(client *pkgstripe.Client) (Provider, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &stripeProvider{}, nil
}

func (p *stripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	req := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
	}
	if params.Name != "" {
		req.Name = stripe.String(params.Name)
	}
	if params.TenantID != "" {
		req.AddMetadata(MetadataTenantID, params.TenantID)
	}
	req.Context = ctx

	cust, err := customer.New(req)
	if err != nil {
		return "", Unavailable(err, "create_customer")
	}
	return cust.ID, nil
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if params.PriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout price is not configured")
	}
	req := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(params.Metadata),
		},
	}
	if params.CustomerID != "" {
		req.Customer = stripe.String(params.CustomerID)
	}
	if params.CouponID != "" {
		req.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(params.CouponID)},
		}
	}
	if tenantID := params.Metadata[MetadataTenantID]; tenantID != "" {
		req.ClientReferenceID = stripe.String(tenantID)
	}
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	req.Context = ctx

	sess, err := session.New(req)
	if err != nil {
		return nil, Unavailable(err, "create_checkout_session")
	}
	return checkoutSessionFromStripe(sess), nil
}

func (p *stripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	req := &stripe.CheckoutSessionParams{}
	req.Context = ctx

	sess, err := session.Get(sessionID, req)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return nil, Unavailable(err, "get_checkout_session")
	}
	return checkoutSessionFromStripe(sess), nil
}

func (p *stripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	req := &stripe.SubscriptionParams{}
	req.Context = ctx

	sub, err := subscription.Get(subscriptionID, req)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "subscription not found")
		}
		return nil, Unavailable(err, "get_subscription")
	}
	return SubscriptionFromStripe(sub), nil
}

func (p *stripeProvider) UpdateSubscriptionPrice(ctx context.Context, params PriceChangeParams) (*Subscription, error) {
	if params.SubscriptionID == "" || params.ItemID == "" || params.PriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription, item and price are required")
	}
	proration := "none"
	if params.Prorate {
		proration = "create_prorations"
	}
	req := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(params.ItemID),
				Price: stripe.String(params.PriceID),
			},
		},
		ProrationBehavior: stripe.String(proration),
	}
	req.Context = ctx

	sub, err := subscription.Update(params.SubscriptionID, req)
	if err != nil {
		return nil, Unavailable(err, "update_subscription_price")
	}
	return SubscriptionFromStripe(sub), nil
}

func (p *stripeProvider) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	req := &stripe.SubscriptionCancelParams{}
	if reason != "" {
		req.CancellationDetails = &stripe.SubscriptionCancelCancellationDetailsParams{
			Comment: stripe.String(reason),
		}
	}
	req.Context = ctx

	if _, err := subscription.Cancel(subscriptionID, req); err != nil {
		return Unavailable(err, "cancel_subscription")
	}
	return nil
}

func (p *stripeProvider) CreateCoupon(ctx context.Context, params CouponParams) (string, error) {
	percent, _ := params.PercentOff.Float64()
	if percent <= 0 || percent > 100 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon percent must be within (0, 100]")
	}
	if params.DurationMonths <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon duration must be positive")
	}
	req := &stripe.CouponParams{
		PercentOff:       stripe.Float64(percent),
		Duration:         stripe.String(string(stripe.CouponDurationRepeating)),
		DurationInMonths: stripe.Int64(int64(params.DurationMonths)),
		MaxRedemptions:   stripe.Int64(1),
	}
	if params.Name != "" {
		req.Name = stripe.String(params.Name)
	}
	if params.PromoCodeID != "" {
		req.AddMetadata(MetadataPromoCodeID, params.PromoCodeID)
	}
	req.Context = ctx

	c, err := coupon.New(req)
	if err != nil {
		return "", Unavailable(err, "create_coupon")
	}
	return c.ID, nil
}

func checkoutSessionFromStripe(sess *stripe.CheckoutSession) *CheckoutSession {
	if sess == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      copyMetadata(sess.Metadata),
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	return out
}

// SubscriptionFromStripe normalises a Stripe subscription. Billing periods are read
// from the first subscription item.
func SubscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            mapStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(sub.CanceledAt),
		Metadata:          copyMetadata(sub.Metadata),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				if interval, err := enums.ParseBillingInterval(string(item.Price.Recurring.Interval)); err == nil {
					out.Interval = interval
				}
			}
		}
	}
	if out.Interval == "" {
		if interval, err := enums.ParseBillingInterval(out.Metadata[MetadataBillingInterval]); err == nil {
			out.Interval = interval
		} else {
			out.Interval = enums.BillingIntervalMonthly
		}
	}
	return out
}

func mapStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	parsed, err := enums.ParseSubscriptionStatus(strings.ToLower(string(status)))
	if err != nil {
		return enums.SubscriptionStatusIncomplete
	}
	return parsed
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
