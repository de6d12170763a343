package payments

import (
	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// PriceBook resolves provider price ids for a plan tier and billing interval.
type PriceBook struct {
	Monthly        string
	Yearly         string
	FounderMonthly string
	FounderYearly  string
}

func NewPriceBook(cfg config.StripeConfig) PriceBook {
	return PriceBook{
		Monthly:        cfg.MonthlyPriceID,
		Yearly:         cfg.YearlyPriceID,
		FounderMonthly: cfg.FounderMonthlyPriceID,
		FounderYearly:  cfg.FounderYearlyPriceID,
	}
}

func (p PriceBook) Standard(interval enums.BillingInterval) string {
	if interval == enums.BillingIntervalYearly {
		return p.Yearly
	}
	return p.Monthly
}

func (p PriceBook) Founder(interval enums.BillingInterval) string {
	if interval == enums.BillingIntervalYearly {
		return p.FounderYearly
	}
	return p.FounderMonthly
}

// Price picks the founder or standard price for interval.
func (p PriceBook) Price(interval enums.BillingInterval, founder bool) string {
	if founder {
		return p.Founder(interval)
	}
	return p.Standard(interval)
}

// IntervalOf returns the interval a known price id bills at.
func (p PriceBook) IntervalOf(priceID string) (enums.BillingInterval, bool) {
	switch priceID {
	case "":
		return "", false
	case p.Monthly, p.FounderMonthly:
		return enums.BillingIntervalMonthly, true
	case p.Yearly, p.FounderYearly:
		return enums.BillingIntervalYearly, true
	}
	return "", false
}
