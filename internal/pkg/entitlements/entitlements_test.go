package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, PlanBasic, NormalizePlan("basic"))
	assert.Equal(t, PlanBasic, NormalizePlan("  Basic "))
	assert.Equal(t, PlanProfessional, NormalizePlan("PROFESSIONAL"))
	assert.Equal(t, PlanFree, NormalizePlan("free"))
	assert.Equal(t, PlanFree, NormalizePlan(""))
	assert.Equal(t, PlanFree, NormalizePlan("gold"))
}

func TestPlanRank(t *testing.T) {
	assert.Less(t, PlanRank(PlanFree), PlanRank(PlanBasic))
	assert.Less(t, PlanRank(PlanBasic), PlanRank(PlanProfessional))
	assert.Equal(t, PlanRank(PlanFree), PlanRank("unknown"))
}

func TestLimitAllows(t *testing.T) {
	limit := Limit(5)
	assert.True(t, limit.Allows(0))
	assert.True(t, limit.Allows(4))
	assert.False(t, limit.Allows(5))
	assert.False(t, limit.Allows(6))

	assert.True(t, Unlimited.Allows(0))
	assert.True(t, Unlimited.Allows(1<<40))
	assert.True(t, Unlimited.IsUnlimited())
	assert.False(t, limit.IsUnlimited())
}

func TestLimitsForIsTotal(t *testing.T) {
	free := LimitsFor(PlanFree)
	assert.Equal(t, Limit(5), free.MaxActiveListings)
	assert.False(t, free.AllowFeatured)
	assert.False(t, free.AllowAttachments)
	assert.False(t, free.AllowAnalytics)
	assert.Equal(t, Limit(0), free.MaxFeaturedPerMonth)

	basic := LimitsFor(PlanBasic)
	assert.Equal(t, Limit(20), basic.MaxActiveListings)
	assert.True(t, basic.AllowFeatured)
	assert.True(t, basic.AllowAttachments)
	assert.False(t, basic.AllowAnalytics)
	assert.Equal(t, Limit(5), basic.MaxFeaturedPerMonth)

	pro := LimitsFor(PlanProfessional)
	assert.True(t, pro.MaxActiveListings.IsUnlimited())
	assert.True(t, pro.AllowFeatured)
	assert.True(t, pro.AllowAttachments)
	assert.True(t, pro.AllowAnalytics)
	assert.True(t, pro.MaxFeaturedPerMonth.IsUnlimited())

	// garbage tiers never escalate entitlements
	assert.Equal(t, free, LimitsFor("enterprise"))
}
