package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// User is a team member of a tenant, linked to the identity provider once they sign up.
type User struct {
	ID             uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID       uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;index"`
	Email          string           `gorm:"column:email;type:text;not null"`
	Name           string           `gorm:"column:name;not null;default:''"`
	Role           enums.UserRole   `gorm:"column:role;type:user_role;not null;default:'MEMBER'"`
	Status         enums.UserStatus `gorm:"column:status;type:user_status;not null;default:'ACTIVE'"`
	ExternalAuthID *string          `gorm:"column:external_auth_id;unique"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
