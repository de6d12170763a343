package billing

import (
	"context"
	"errors"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/google/uuid"
)

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo Repository
}

// Service exposes read models over a tenant's subscription and payments.
type Service struct {
	repo Repository
}

// Overview is the subscription summary rendered on the billing page.
type Overview struct {
	Subscription *models.Subscription        `json:"subscription"`
	Payments     []models.SubscriptionPayment `json:"payments"`
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Overview returns the tenant's subscription, if any, and its most recent payments.
func (s *Service) Overview(ctx context.Context, tenantID uuid.UUID) (*Overview, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	sub, err := s.repo.FindSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	out := &Overview{Subscription: sub, Payments: []models.SubscriptionPayment{}}
	if sub == nil {
		return out, nil
	}
	payments, err := s.repo.ListPayments(ctx, sub.ID, 12)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payments")
	}
	out.Payments = payments
	return out, nil
}
