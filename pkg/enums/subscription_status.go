package enums

// SubscriptionStatus is the provider's subscription state, stored verbatim.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

func subscriptionStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{
		SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled, SubscriptionStatusIncomplete, SubscriptionStatusIncompleteExpired,
		SubscriptionStatusUnpaid, SubscriptionStatusPaused,
	}
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	return oneOf(s, subscriptionStatuses()...)
}

// IsEntitled is true while the provider treats the subscription as paid up.
func (s SubscriptionStatus) IsEntitled() bool {
	return oneOf(s, SubscriptionStatusActive, SubscriptionStatusTrialing)
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return parseExact("subscription status", value, subscriptionStatuses()...)
}
