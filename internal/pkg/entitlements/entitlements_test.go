package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonasWeber/NomadBase/app/models"
)

func TestAllowedFeatures(t *testing.T) {
	cases := []struct {
		plan                                       Plan
		itineraries, proCalculators, offlineExport bool
	}{
		{PlanFree, true, false, false},
		{PlanPro, true, true, false},
		{PlanPremium, true, true, true},
		{Plan("unknown"), true, false, false},
	}
	for _, c := range cases {
		itineraries, proCalculators, offlineExport := AllowedFeatures(c.plan)
		if itineraries != c.itineraries || proCalculators != c.proCalculators || offlineExport != c.offlineExport {
			t.Fatalf("AllowedFeatures(%q) = (%v, %v, %v), want (%v, %v, %v)",
				c.plan, itineraries, proCalculators, offlineExport, c.itineraries, c.proCalculators, c.offlineExport)
		}
	}
}

func TestEffectivePlan(t *testing.T) {
	assert.Equal(t, PlanFree, EffectivePlan(nil))

	ent := &models.UserEntitlement{Status: models.EntitlementStatusActive, PlanID: "pro"}
	assert.Equal(t, PlanPro, EffectivePlan(ent))

	ent.PlanID = " Premium "
	assert.Equal(t, PlanPremium, EffectivePlan(ent))

	// Grace period: past_due still entitles until the subscription resolves.
	ent.Status = models.EntitlementStatusPastDue
	assert.Equal(t, PlanPremium, EffectivePlan(ent))

	ent.Status = models.EntitlementStatusTrialing
	assert.Equal(t, PlanPremium, EffectivePlan(ent))

	// Canceled reads as free no matter what plan id is still recorded.
	ent.Status = models.EntitlementStatusCanceled
	assert.Equal(t, PlanFree, EffectivePlan(ent))

	ent.Status = models.EntitlementStatusActive
	ent.PlanID = "price_unmapped"
	assert.Equal(t, PlanFree, EffectivePlan(ent))
}

func TestHasReport(t *testing.T) {
	items := []models.EntitlementItem{
		{UserID: 7, ItemID: "lisbon-2026"},
		{UserID: 7, ItemID: "chiang-mai-2026"},
	}
	assert.True(t, HasReport(items, "lisbon-2026"))
	assert.False(t, HasReport(items, "medellin-2026"))
	assert.False(t, HasReport(nil, "lisbon-2026"))
}
