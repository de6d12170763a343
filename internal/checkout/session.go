package checkout

import (
	"context"
	"strconv"
	"strings"

	"github.com/autevo/filmtechos-backend/internal/payments"
	"github.com/autevo/filmtechos-backend/internal/reconciler"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
)

// SessionInput is the checkout request body.
type SessionInput struct {
	Interval  enums.BillingInterval `json:"interval" validate:"required,oneof=monthly yearly"`
	PromoCode string                `json:"promo_code" validate:"omitempty,max=32"`
	Founder   bool                  `json:"founder"`
}

// Session is a hosted checkout the client redirects to.
type Session struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SyncResult reports what a post-redirect sync did.
type SyncResult struct {
	Applied        bool                     `json:"applied"`
	AlreadyActive  bool                     `json:"already_active"`
	FounderGranted bool                     `json:"founder_granted"`
	PromoConsumed  bool                     `json:"promo_consumed"`
	Status         enums.SubscriptionStatus `json:"status,omitempty"`
	Subscription   *models.Subscription     `json:"subscription,omitempty"`
}

// CreateSession opens a hosted checkout for the actor's tenant.
func (s *Service) CreateSession(ctx context.Context, actor auth.Actor, input SessionInput) (*Session, error) {
	if err := requireBillingManager(actor); err != nil {
		return nil, err
	}
	if !input.Interval.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing interval")
	}
	ctx = s.logg.WithTenantID(ctx, actor.TenantID.String())

	tenant, err := s.tenantRepo.FindTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	existing, err := s.billingRepo.FindSubscriptionByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if existing != nil && existing.Status.IsEntitled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already active")
	}

	if input.Founder {
		remaining, err := s.founders.Remaining(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count founder slots")
		}
		if remaining <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "no founder slots available")
		}
	}

	priceID := s.prices.Price(input.Interval, input.Founder)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout price is not configured").
			WithDetails(map[string]any{"interval": string(input.Interval), "founder": input.Founder})
	}

	metadata := map[string]string{
		payments.MetadataTenantID:        tenant.ID.String(),
		payments.MetadataIsFounder:       strconv.FormatBool(input.Founder),
		payments.MetadataBillingInterval: string(input.Interval),
	}

	var couponID string
	if code := strings.TrimSpace(input.PromoCode); code != "" {
		promo, err := s.promos.Require(ctx, code, input.Interval)
		if err != nil {
			return nil, err
		}
		couponID, err = s.provider.CreateCoupon(ctx, payments.CouponParams{
			PercentOff:     promo.DiscountPercent,
			DurationMonths: promo.DurationMonths,
			Name:           promo.Code,
			PromoCodeID:    promo.PromoCodeID.String(),
		})
		if err != nil {
			return nil, err
		}
		metadata[payments.MetadataPromoCodeID] = promo.PromoCodeID.String()
		metadata[payments.MetadataPromoMonths] = strconv.Itoa(promo.DurationMonths)
	}

	customerID, err := s.ensureCustomer(ctx, actor, tenant)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		CouponID:   couponID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id": sess.ID,
		"interval":   string(input.Interval),
		"founder":    input.Founder,
		"promo":      couponID != "",
	}), "checkout.session_created")
	return &Session{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *Service) ensureCustomer(ctx context.Context, actor auth.Actor, tenant *models.Tenant) (string, error) {
	if tenant.StripeCustomerID != nil && *tenant.StripeCustomerID != "" {
		return *tenant.StripeCustomerID, nil
	}
	user, err := s.tenantRepo.FindUser(ctx, actor.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	customerID, err := s.provider.CreateCustomer(ctx, payments.CustomerParams{
		Email:    user.Email,
		Name:     tenant.Name,
		TenantID: tenant.ID.String(),
	})
	if err != nil {
		return "", err
	}
	if err := s.tenantRepo.SetStripeCustomer(ctx, tenant.ID, customerID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save customer id")
	}
	return customerID, nil
}

// Sync reconciles a completed checkout when the client returns from the hosted page.
// It converges with the checkout webhook through the reconciler.
func (s *Service) Sync(ctx context.Context, actor auth.Actor, sessionID string) (*SyncResult, error) {
	if err := requireMember(actor); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	ctx = s.logg.WithTenantID(ctx, actor.TenantID.String())

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Paid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout not paid").
			WithDetails(map[string]any{"payment_status": sess.PaymentStatus})
	}
	sessionTenant, err := uuid.Parse(sess.Metadata[payments.MetadataTenantID])
	if err != nil || sessionTenant != actor.TenantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout belongs to another tenant")
	}

	existing, err := s.billingRepo.FindSubscriptionByTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if existing != nil && existing.Status == enums.SubscriptionStatusActive {
		return &SyncResult{AlreadyActive: true, Status: existing.Status, Subscription: existing}, nil
	}

	if sess.SubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout has no subscription")
	}
	sub, err := s.provider.GetSubscription(ctx, sess.SubscriptionID)
	if err != nil {
		return nil, err
	}
	event, err := reconciler.CheckoutCompleted(sess, sub, reconciler.SourceSync)
	if err != nil {
		return nil, err
	}
	out, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		Applied:        out.Skipped == "",
		FounderGranted: out.FounderGranted,
		PromoConsumed:  out.PromoConsumed,
		Subscription:   out.Subscription,
	}
	if out.Subscription != nil {
		result.Status = out.Subscription.Status
	}
	return result, nil
}
