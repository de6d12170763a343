package auth

import (
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SystemRoleAdmin grants access to the back-office admin surface.
const SystemRoleAdmin = "admin"

// SessionPayload captures the data written into a session token.
type SessionPayload struct {
	ExternalID string
	TenantID   *uuid.UUID
	UserID     *uuid.UUID
	Role       enums.UserRole
	SystemRole string
}

// SessionClaims is the session token template issued by the identity provider.
// The subject is the identity provider's user id; tenant and role claims are copied
// from the user's public metadata and may lag behind the database.
type SessionClaims struct {
	TenantID   *uuid.UUID     `json:"tenant_id,omitempty"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	Role       enums.UserRole `json:"role,omitempty"`
	SystemRole string         `json:"system_role,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller resolved for a request.
type Actor struct {
	ExternalID string
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Role       enums.UserRole
	SystemRole string
}

// IsSystemAdmin reports whether the actor may use admin endpoints.
func (a Actor) IsSystemAdmin() bool {
	return a.SystemRole == SystemRoleAdmin
}

// Complete reports whether tenant, user and role are all known.
func (a Actor) Complete() bool {
	return a.TenantID != uuid.Nil && a.UserID != uuid.Nil && a.Role.IsValid()
}
