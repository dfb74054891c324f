package entitlements

import "strings"

type Plan string

const (
	PlanFree         Plan = "free"
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
)

// Limit is a numeric entitlement. Unlimited is a distinguished sentinel so a
// boundless plan is never expressed as a "large enough" integer.
type Limit int

const Unlimited Limit = -1

// IsUnlimited reports whether the limit is the boundless sentinel.
func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// Allows reports whether a current usage count leaves room under the limit.
func (l Limit) Allows(count int64) bool {
	return l.IsUnlimited() || count < int64(l)
}

// Limits holds everything a plan tier entitles an owner to.
type Limits struct {
	MaxActiveListings   Limit
	AllowFeatured       bool
	AllowAttachments    bool
	AllowAnalytics      bool
	MaxFeaturedPerMonth Limit
}

// NormalizePlan maps arbitrary stored tier strings onto a known plan,
// falling back to free for anything unrecognized.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanBasic):
		return PlanBasic
	case string(PlanProfessional):
		return PlanProfessional
	default:
		return PlanFree
	}
}

// PlanRank orders plans so upgrades/downgrades can be compared.
func PlanRank(plan Plan) int {
	switch NormalizePlan(string(plan)) {
	case PlanProfessional:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}

// LimitsFor returns the entitlement limits for a plan tier. It is total: an
// unknown tier yields the free limits, never an error, so the guard path can
// not crash on bad plan data.
func LimitsFor(plan Plan) Limits {
	switch NormalizePlan(string(plan)) {
	case PlanProfessional:
		return Limits{
			MaxActiveListings:   Unlimited,
			AllowFeatured:       true,
			AllowAttachments:    true,
			AllowAnalytics:      true,
			MaxFeaturedPerMonth: Unlimited,
		}
	case PlanBasic:
		return Limits{
			MaxActiveListings:   20,
			AllowFeatured:       true,
			AllowAttachments:    true,
			AllowAnalytics:      false,
			MaxFeaturedPerMonth: 5,
		}
	default:
		return Limits{
			MaxActiveListings:   5,
			AllowFeatured:       false,
			AllowAttachments:    false,
			AllowAnalytics:      false,
			MaxFeaturedPerMonth: 0,
		}
	}
}
