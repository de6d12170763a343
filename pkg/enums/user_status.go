package enums

// UserStatus distinguishes pre-provisioned invitations from linked accounts.
type UserStatus string

const (
	UserStatusInvited UserStatus = "INVITED"
	UserStatusActive  UserStatus = "ACTIVE"
)

func (s UserStatus) String() string {
	return string(s)
}

func (s UserStatus) IsValid() bool {
	return s == UserStatusInvited || s == UserStatusActive
}
