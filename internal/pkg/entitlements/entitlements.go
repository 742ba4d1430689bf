package entitlements

import (
	"strings"

	"github.com/JonasWeber/NomadBase/app/models"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// AllowedFeatures returns which paid site features a plan unlocks:
// saved itineraries, the pro cost calculators and offline report export.
func AllowedFeatures(plan Plan) (itineraries, proCalculators, offlineExport bool) {
	switch plan {
	case PlanPremium:
		return true, true, true
	case PlanPro:
		return true, true, false
	default:
		return true, false, false
	}
}

// EffectivePlan maps an entitlement record to the plan the rest of the app
// gates on. Non-entitling statuses always read as free regardless of the
// recorded plan id.
func EffectivePlan(ent *models.UserEntitlement) Plan {
	if ent == nil || !models.IsEntitling(ent.Status) {
		return PlanFree
	}
	switch Plan(strings.ToLower(strings.TrimSpace(ent.PlanID))) {
	case PlanPro:
		return PlanPro
	case PlanPremium:
		return PlanPremium
	default:
		return PlanFree
	}
}

// HasReport reports whether a purchased-items set contains a report id.
func HasReport(items []models.EntitlementItem, reportID string) bool {
	for _, it := range items {
		if it.ItemID == reportID {
			return true
		}
	}
	return false
}
