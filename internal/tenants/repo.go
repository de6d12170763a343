package tenants

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/autevo/filmtechos-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists tenants and their users.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	FindTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	LockTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindTenantByStripeCustomer(ctx context.Context, customerID string) (*models.Tenant, error)
	ListTenants(ctx context.Context, params ListTenantsParams) ([]models.Tenant, *pagination.Cursor, error)
	UpdateTenantStatus(ctx context.Context, id uuid.UUID, status enums.TenantStatus) error
	SetFoundingMember(ctx context.Context, id uuid.UUID, founder bool) error
	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error
	CountFoundingMembers(ctx context.Context) (int64, error)
	ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Tenant, error)
	HasEntitledSubscription(ctx context.Context, tenantID uuid.UUID) (bool, error)
	DeleteTenant(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	FindUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error)
	CountOwners(ctx context.Context, tenantID uuid.UUID) (int64, error)
	DeleteUsers(ctx context.Context, tenantID uuid.UUID) error
}

// ListTenantsParams filters the admin tenant listing, newest first.
type ListTenantsParams struct {
	Status enums.TenantStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tenants repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *repository) FindTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.firstTenant(r.db.WithContext(ctx).Where("id = ?", id))
}

// LockTenant reads the tenant row with a row-level lock held until the surrounding transaction ends.
func (r *repository) LockTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.firstTenant(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindTenantByStripeCustomer(ctx context.Context, customerID string) (*models.Tenant, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.firstTenant(r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID))
}

func (r *repository) ListTenants(ctx context.Context, params ListTenantsParams) ([]models.Tenant, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Tenant{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var tenants []models.Tenant
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&tenants).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(tenants, params.Limit, func(t models.Tenant) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

func (r *repository) firstTenant(query *gorm.DB) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := query.First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) UpdateTenantStatus(ctx context.Context, id uuid.UUID, status enums.TenantStatus) error {
	return r.updateTenant(ctx, id, map[string]any{"status": status})
}

func (r *repository) SetFoundingMember(ctx context.Context, id uuid.UUID, founder bool) error {
	return r.updateTenant(ctx, id, map[string]any{"is_founding_member": founder})
}

func (r *repository) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.updateTenant(ctx, id, map[string]any{"stripe_customer_id": customerID})
}

func (r *repository) updateTenant(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CountFoundingMembers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("is_founding_member = ?", true).
		Count(&count).Error
	return count, err
}

// ListExpiredTrials returns trial tenants whose trial ended at or before now.
func (r *repository) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Tenant, error) {
	if limit <= 0 {
		limit = 250
	}
	var tenants []models.Tenant
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.TenantStatusTrial).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at <= ?", now).
		Order("trial_ends_at ASC").
		Limit(limit).
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// HasEntitledSubscription reports whether the tenant holds an active or trialing subscription.
func (r *repository) HasEntitledSubscription(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusTrialing,
		}).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Tenant{}).Error
}

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) UpdateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.firstUser(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.firstUser(r.db.WithContext(ctx).Where("external_auth_id = ?", externalID))
}

func (r *repository) FindUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	return r.firstUser(r.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, strings.ToLower(strings.TrimSpace(email))))
}

func (r *repository) firstUser(query *gorm.DB) (*models.User, error) {
	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) CountOwners(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("tenant_id = ? AND role = ?", tenantID, enums.UserRoleOwner).
		Count(&count).Error
	return count, err
}

func (r *repository) DeleteUsers(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.User{}).Error
}
