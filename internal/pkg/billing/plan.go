package billing

import (
	"strings"

	"github.com/JonasWeber/NomadBase/app/models"
	"github.com/JonasWeber/NomadBase/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(entitlements.PlanPro):
		return string(entitlements.PlanPro)
	case string(entitlements.PlanPremium):
		return string(entitlements.PlanPremium)
	default:
		return string(entitlements.PlanFree)
	}
}

func planRank(plan string) int {
	switch normalizePlan(plan) {
	case string(entitlements.PlanPremium):
		return 2
	case string(entitlements.PlanPro):
		return 1
	default:
		return 0
	}
}

// statusFromProcessor maps a processor subscription status onto the
// entitlement status enum. Unknown statuses read as past_due rather than
// canceled so a new processor-side status never silently revokes access.
func statusFromProcessor(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.EntitlementStatusActive
	case "trialing":
		return models.EntitlementStatusTrialing
	case "past_due", "unpaid", "incomplete":
		return models.EntitlementStatusPastDue
	case "canceled", "incomplete_expired":
		return models.EntitlementStatusCanceled
	default:
		return models.EntitlementStatusPastDue
	}
}
