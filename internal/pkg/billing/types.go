package billing

import "time"

// NormalizedSubscription is the provider-agnostic shape a webhook payload is
// reduced to before it touches plan state.
type NormalizedSubscription struct {
	UserID                 uint
	Provider               string
	ProviderSubscriptionID string
	ProviderPlanRef        string
	BillingInterval        string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}
