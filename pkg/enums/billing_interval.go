package enums

import (
	"fmt"
	"strings"
)

// BillingInterval is the cadence of a plan price.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalYearly  BillingInterval = "yearly"
)

var billingIntervalAliases = map[string]BillingInterval{
	"monthly": BillingIntervalMonthly,
	"month":   BillingIntervalMonthly,
	"yearly":  BillingIntervalYearly,
	"year":    BillingIntervalYearly,
	"annual":  BillingIntervalYearly,
}

func (b BillingInterval) String() string { return string(b) }

func (b BillingInterval) IsValid() bool {
	return oneOf(b, BillingIntervalMonthly, BillingIntervalYearly)
}

// ParseBillingInterval also accepts the provider's recurring interval names.
func ParseBillingInterval(value string) (BillingInterval, error) {
	if interval, ok := billingIntervalAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return interval, nil
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
