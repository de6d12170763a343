package enums

// PaymentStatus is the outcome recorded for one subscription invoice.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	return oneOf(p, PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed)
}

// IsSettled reports whether the invoice reached a final outcome.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusSucceeded || p == PaymentStatusFailed
}
