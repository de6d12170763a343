package enums

// UserRole is a user's permission level inside its tenant.
type UserRole string

const (
	UserRoleOwner  UserRole = "OWNER"
	UserRoleAdmin  UserRole = "ADMIN"
	UserRoleMember UserRole = "MEMBER"
)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	return oneOf(r, UserRoleOwner, UserRoleAdmin, UserRoleMember)
}

// CanManageBilling gates checkout, plan changes and the billing overview.
func (r UserRole) CanManageBilling() bool {
	return oneOf(r, UserRoleOwner, UserRoleAdmin)
}

func ParseUserRole(value string) (UserRole, error) {
	return parseExact("user role", value, UserRoleOwner, UserRoleAdmin, UserRoleMember)
}
