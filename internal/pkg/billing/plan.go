package billing

import (
	"strings"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
)

// resolveTier maps a provider plan reference onto an internal tier. Unknown
// references resolve to free rather than failing the webhook.
func resolveTier(providerPlanRef string) entitlements.Plan {
	switch strings.ToLower(strings.TrimSpace(providerPlanRef)) {
	case "basic", "basic_monthly", "basic_yearly":
		return entitlements.PlanBasic
	case "professional", "professional_monthly", "professional_yearly", "pro":
		return entitlements.PlanProfessional
	default:
		return entitlements.PlanFree
	}
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
