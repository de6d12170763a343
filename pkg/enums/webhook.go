package enums

// WebhookProvider names the upstream system that delivered a webhook.
type WebhookProvider string

const (
	WebhookProviderStripe WebhookProvider = "stripe"
	WebhookProviderClerk  WebhookProvider = "clerk"
)

func (p WebhookProvider) String() string {
	return string(p)
}

// WebhookStatus tracks the processing state of a logged webhook event.
type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
	WebhookStatusIgnored   WebhookStatus = "ignored"
)

func (s WebhookStatus) String() string {
	return string(s)
}

// IsTerminal reports whether redeliveries of the event can be acknowledged without work.
func (s WebhookStatus) IsTerminal() bool {
	return s == WebhookStatusProcessed || s == WebhookStatusIgnored
}
