package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/plansweep"
)

var (
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrInvalidPayload   = errors.New("billing: invalid webhook payload")
)

// Service turns provider webhook events into plan changes. It owns no plan
// state itself; everything goes through the plan-change job so listing
// visibility is reconciled in the same pass.
type Service struct {
	jobs   *plansweep.Jobs
	secret string
}

// NewService wires the billing service against the plan-change jobs.
func NewService(jobs *plansweep.Jobs) *Service {
	return &Service{
		jobs:   jobs,
		secret: env.GetEnv("BILLING_WEBHOOK_SECRET", ""),
	}
}

// webhookEvent is the wire shape providers deliver.
type webhookEvent struct {
	EventType    string `json:"event_type"`
	Subscription struct {
		UserID            uint       `json:"user_id"`
		Provider          string     `json:"provider"`
		SubscriptionID    string     `json:"subscription_id"`
		PlanRef           string     `json:"plan_ref"`
		Interval          string     `json:"interval"`
		Status            string     `json:"status"`
		CurrentPeriodEnd  *time.Time `json:"current_period_end"`
		CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	} `json:"subscription"`
}

// ParseWebhook validates and normalizes a raw webhook payload.
func ParseWebhook(payload []byte) (*NormalizedSubscription, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Subscription.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}

	return &NormalizedSubscription{
		UserID:                 event.Subscription.UserID,
		Provider:               event.Subscription.Provider,
		ProviderSubscriptionID: event.Subscription.SubscriptionID,
		ProviderPlanRef:        event.Subscription.PlanRef,
		BillingInterval:        normalizeInterval(event.Subscription.Interval),
		Status:                 event.Subscription.Status,
		CurrentPeriodEnd:       event.Subscription.CurrentPeriodEnd,
		CancelAtPeriodEnd:      event.Subscription.CancelAtPeriodEnd,
	}, nil
}

// HandleWebhook verifies, parses and applies one provider event. A
// subscription that is no longer entitling lands on the free tier, which
// enforces listing limits in the same locked pass.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if !VerifyWebhookSignature(payload, signatureHeader, s.secret) {
		return ErrInvalidSignature
	}

	sub, err := ParseWebhook(payload)
	if err != nil {
		return err
	}
	return s.Apply(ctx, sub)
}

// Apply syncs one normalized subscription into plan state.
func (s *Service) Apply(ctx context.Context, sub *NormalizedSubscription) error {
	tier := entitlements.PlanFree
	var endDate *time.Time
	if isEntitlingStatus(sub.Status) {
		tier = resolveTier(sub.ProviderPlanRef)
		endDate = sub.CurrentPeriodEnd
	}
	if tier != entitlements.PlanFree && endDate == nil {
		return fmt.Errorf("%w: paid plan without period end", ErrInvalidPayload)
	}

	result, err := s.jobs.ApplyPlanChange(ctx, sub.UserID, tier, endDate, false)
	if err != nil {
		return err
	}
	log.Infof("[Billing] user %d synced to %s (%d hidden, %d restored)",
		sub.UserID, tier, len(result.Deactivated), result.Reactivated)
	return nil
}
