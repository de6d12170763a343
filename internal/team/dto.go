package team

import (
	"time"

	"github.com/google/uuid"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// MemberDTO is the transport shape for a team member.
type MemberDTO struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  uuid.UUID        `json:"tenant_id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Role      enums.UserRole   `json:"role"`
	Status    enums.UserStatus `json:"status"`
	Linked    bool             `json:"linked"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ToDTO converts a user row to the external DTO.
func ToDTO(u *models.User) *MemberDTO {
	if u == nil {
		return nil
	}
	return &MemberDTO{
		ID:        u.ID,
		TenantID:  u.TenantID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		Linked:    u.ExternalAuthID != nil && *u.ExternalAuthID != "",
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
