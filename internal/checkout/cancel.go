package checkout

import (
	"context"
	"strings"

	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"gorm.io/gorm"
)

// CancelConfirmation is the phrase the owner must type to delete the account.
const CancelConfirmation = "CANCELAR ASSINATURA"

// CancelResult summarises a completed account deletion.
type CancelResult struct {
	TenantID            string `json:"tenant_id"`
	ProviderCanceled    bool   `json:"provider_canceled"`
	FounderSlotReleased bool   `json:"founder_slot_released"`
	UsersDeleted        int    `json:"users_deleted"`
}

// CancelAccount cancels the provider subscription and deletes the tenant with its users,
// subscription and payments. A provider failure does not stop the deletion.
func (s *Service) CancelAccount(ctx context.Context, actor auth.Actor, confirmation string) (*CancelResult, error) {
	if strings.TrimSpace(confirmation) != CancelConfirmation {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation text does not match")
	}
	if err := requireMember(actor); err != nil {
		return nil, err
	}
	if actor.Role != enums.UserRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can cancel the account")
	}
	ctx = s.logg.WithTenantID(ctx, actor.TenantID.String())
	result := &CancelResult{TenantID: actor.TenantID.String()}

	sub, err := s.billingRepo.FindSubscriptionByTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub != nil && sub.Status != enums.SubscriptionStatusCanceled {
		if err := s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID, "account deleted by owner"); err != nil {
			s.logg.Error(ctx, "checkout.provider_cancel_failed", err)
		} else {
			result.ProviderCanceled = true
		}
	}

	var externalIDs []string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tenantRepo := s.tenantRepo.WithTx(tx)

		tenant, err := tenantRepo.LockTenant(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		users, err := tenantRepo.ListUsers(ctx, tenant.ID)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.ExternalAuthID != nil && *u.ExternalAuthID != "" {
				externalIDs = append(externalIDs, *u.ExternalAuthID)
			}
		}
		if err := s.billingRepo.WithTx(tx).DeleteByTenant(ctx, tenant.ID); err != nil {
			return err
		}
		if tenant.IsFoundingMember {
			if err := s.founders.Release(ctx, tx); err != nil {
				return err
			}
			result.FounderSlotReleased = true
		}
		if err := tenantRepo.DeleteUsers(ctx, tenant.ID); err != nil {
			return err
		}
		result.UsersDeleted = len(users)
		return tenantRepo.DeleteTenant(ctx, tenant.ID)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete account")
	}

	s.identity.DispatchDeletes(ctx, externalIDs)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_canceled": result.ProviderCanceled,
		"users_deleted":     result.UsersDeleted,
	}), "checkout.account_deleted")
	return result, nil
}
