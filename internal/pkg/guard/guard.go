package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
)

// Action is the closed set of plan-gated operations. The evaluator switches
// over it exhaustively; a value outside the set is a programming error
// surfaced as ErrUnknownAction, never a silent allow or deny.
type Action string

const (
	ActionActivateListing Action = "activate_listing"
	ActionMarkFeatured    Action = "mark_featured"
	ActionAttachFile      Action = "attach_file"
	ActionViewAnalytics   Action = "view_analytics"
)

// ErrOwnerNotFound distinguishes an unknown owner (an auth problem) from an
// entitlement denial.
var ErrOwnerNotFound = errors.New("owner not found")

// ErrUnknownAction is returned for an action outside the closed set.
var ErrUnknownAction = errors.New("unknown guard action")

// Deny reasons carried in a Decision.
const (
	ReasonLimitReached       = "active_listing_limit_reached"
	ReasonFeaturedNotInPlan  = "featured_not_in_plan"
	ReasonFeaturedQuotaUsed  = "featured_quota_used"
	ReasonAttachNotInPlan    = "attachments_not_in_plan"
	ReasonAnalyticsNotInPlan = "analytics_not_in_plan"
)

// Decision is the outcome of a guard check. Denials are values, not errors,
// and carry enough context for the caller to explain "why".
type Decision struct {
	Allowed bool
	Reason  string
	Tier    entitlements.Plan
	Limit   entitlements.Limit
	Count   int64
}

func allow(tier entitlements.Plan) Decision {
	return Decision{Allowed: true, Tier: tier}
}

// Evaluator answers "may this owner perform this action right now". It is a
// pure read-and-decide over the plan state and current usage; callers that
// act on an allow must hold the same owner lock as the check (see the
// lifecycle engine).
type Evaluator struct {
	plans    repository.PlanStore
	listings repository.ListingStore
	clock    clock.Clock
}

// New creates an evaluator over the given stores. Inside a locked section the
// engine rebuilds one over the transaction-bound stores, so count and write
// share the lock scope.
func New(plans repository.PlanStore, listings repository.ListingStore, clk clock.Clock) *Evaluator {
	return &Evaluator{plans: plans, listings: listings, clock: clk}
}

// Check evaluates an action for an owner.
func (e *Evaluator) Check(ctx context.Context, ownerID uint, action Action) (Decision, error) {
	_ = ctx
	plan, err := e.plans.GetByUser(ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Decision{}, fmt.Errorf("%w: user %d", ErrOwnerNotFound, ownerID)
		}
		return Decision{}, err
	}

	tier := entitlements.NormalizePlan(plan.PlanTier)
	if tier != entitlements.PlanFree && plan.PlanEndDate == nil && !plan.NonExpiring {
		// Data-integrity problem owned by billing; never coerce it away here.
		log.Errorf("[Guard] user %d has paid tier %s without plan_end_date and no non-expiring grant", ownerID, tier)
	}
	limits := entitlements.LimitsFor(tier)

	switch action {
	case ActionActivateListing:
		if limits.MaxActiveListings.IsUnlimited() {
			return allow(tier), nil
		}
		count, err := e.listings.CountActive(ownerID)
		if err != nil {
			return Decision{}, err
		}
		if limits.MaxActiveListings.Allows(count) {
			d := allow(tier)
			d.Limit = limits.MaxActiveListings
			d.Count = count
			return d, nil
		}
		return Decision{
			Reason: ReasonLimitReached,
			Tier:   tier,
			Limit:  limits.MaxActiveListings,
			Count:  count,
		}, nil

	case ActionMarkFeatured:
		if !limits.AllowFeatured {
			return Decision{Reason: ReasonFeaturedNotInPlan, Tier: tier}, nil
		}
		if limits.MaxFeaturedPerMonth.IsUnlimited() {
			return allow(tier), nil
		}
		count, err := e.listings.CountFeaturedSince(ownerID, startOfMonth(e.clock.Now()))
		if err != nil {
			return Decision{}, err
		}
		if limits.MaxFeaturedPerMonth.Allows(count) {
			d := allow(tier)
			d.Limit = limits.MaxFeaturedPerMonth
			d.Count = count
			return d, nil
		}
		return Decision{
			Reason: ReasonFeaturedQuotaUsed,
			Tier:   tier,
			Limit:  limits.MaxFeaturedPerMonth,
			Count:  count,
		}, nil

	case ActionAttachFile:
		if limits.AllowAttachments {
			return allow(tier), nil
		}
		return Decision{Reason: ReasonAttachNotInPlan, Tier: tier}, nil

	case ActionViewAnalytics:
		if limits.AllowAnalytics {
			return allow(tier), nil
		}
		return Decision{Reason: ReasonAnalyticsNotInPlan, Tier: tier}, nil

	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// startOfMonth returns the first instant of the calendar month containing t.
func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
