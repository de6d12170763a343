package enums

// TenantStatus gates access to the product for every user of a tenant.
type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "TRIAL"
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusPastDue   TenantStatus = "PAST_DUE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusCanceled  TenantStatus = "CANCELED"
)

func tenantStatuses() []TenantStatus {
	return []TenantStatus{TenantStatusTrial, TenantStatusActive, TenantStatusPastDue, TenantStatusSuspended, TenantStatusCanceled}
}

func (s TenantStatus) String() string { return string(s) }

func (s TenantStatus) IsValid() bool {
	return oneOf(s, tenantStatuses()...)
}

// HasAccess is false once a tenant is suspended or canceled. Past-due tenants keep
// access during the provider's retry window.
func (s TenantStatus) HasAccess() bool {
	return oneOf(s, TenantStatusTrial, TenantStatusActive, TenantStatusPastDue)
}

func ParseTenantStatus(value string) (TenantStatus, error) {
	return parseExact("tenant status", value, tenantStatuses()...)
}
