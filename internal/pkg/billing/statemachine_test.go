package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasWeber/NomadBase/app/models"
)

var (
	t0 = time.Unix(1700000000, 0)
	t1 = time.Unix(1700000100, 0)
	t2 = time.Unix(1700000200, 0)
)

func checkoutEvent(id, mode, customer, subscription string, metadata map[string]string, at time.Time) *Event {
	return &Event{
		ID:         id,
		Type:       EventCheckoutCompleted,
		OccurredAt: at,
		Checkout: &CheckoutSession{
			ID:           "cs_" + id,
			Mode:         mode,
			Customer:     customer,
			Subscription: subscription,
			Metadata:     metadata,
		},
	}
}

func invoiceEvent(id, customer, subscription string, periodEnd int64, at time.Time) *Event {
	return &Event{
		ID:         id,
		Type:       EventInvoicePaid,
		OccurredAt: at,
		Invoice: &Invoice{
			ID:           "in_" + id,
			Customer:     customer,
			Subscription: subscription,
			PeriodEnd:    periodEnd,
			Paid:         true,
		},
	}
}

func subscriptionEvent(id, eventType, subscription, customer, status string, at time.Time) *Event {
	return &Event{
		ID:         id,
		Type:       eventType,
		OccurredAt: at,
		Subscription: &Subscription{
			ID:       subscription,
			Customer: customer,
			Status:   status,
		},
	}
}

func entitlement(status, subID string, lastEvent *time.Time) *models.UserEntitlement {
	cust := "cus_1"
	return &models.UserEntitlement{
		UserID:                 7,
		Status:                 status,
		ExternalCustomerID:     &cust,
		ExternalSubscriptionID: subID,
		PlanID:                 "pro",
		LastEventAt:            lastEvent,
	}
}

func TestApply_SubscriptionCheckoutFromNone(t *testing.T) {
	periodEnd := t2
	snap := &SubscriptionSnapshot{
		ID:               "sub_1",
		Customer:         "cus_1",
		Status:           "active",
		PriceID:          "price_pro",
		CurrentPeriodEnd: &periodEnd,
	}
	ev := checkoutEvent("evt_1", CheckoutModeSubscription, "cus_1", "sub_1", nil, t0)

	ch, noop := Apply(nil, ev, snap, "pro", 7)
	require.False(t, noop)
	require.NotNil(t, ch.Status)
	assert.Equal(t, models.EntitlementStatusActive, *ch.Status)
	assert.Equal(t, "pro", *ch.PlanID)
	assert.Equal(t, "sub_1", ch.SubscriptionID)
	assert.Equal(t, "cus_1", *ch.CustomerID)
	assert.Equal(t, t2, *ch.PeriodEnd)
	assert.Equal(t, t0, ch.EventTime)
}

func TestApply_SubscriptionCheckoutTrialing(t *testing.T) {
	snap := &SubscriptionSnapshot{ID: "sub_1", Customer: "cus_1", Status: "trialing"}
	ev := checkoutEvent("evt_1", CheckoutModeSubscription, "cus_1", "sub_1", nil, t0)

	ch, noop := Apply(nil, ev, snap, "pro", 7)
	require.False(t, noop)
	assert.Equal(t, models.EntitlementStatusTrialing, *ch.Status)
}

func TestApply_OneTimePurchase(t *testing.T) {
	ev := checkoutEvent("evt_1", CheckoutModePayment, "cus_1", "", map[string]string{"report_id": "r1"}, t0)

	ch, noop := Apply(nil, ev, nil, "", 7)
	require.False(t, noop)
	assert.Equal(t, []string{"r1"}, ch.AddItems)
	assert.Nil(t, ch.Status, "one-time purchases never touch status")
	assert.Equal(t, "cus_1", *ch.CustomerID)
}

func TestApply_OneTimePurchaseWithoutReport(t *testing.T) {
	ev := checkoutEvent("evt_1", CheckoutModePayment, "cus_1", "", nil, t0)
	_, noop := Apply(nil, ev, nil, "", 7)
	assert.True(t, noop)
}

func TestApply_InvoiceExtendsActive(t *testing.T) {
	current := entitlement(models.EntitlementStatusActive, "sub_1", &t0)
	ev := invoiceEvent("evt_2", "cus_1", "sub_1", t2.Unix(), t1)

	ch, noop := Apply(current, ev, nil, "", 7)
	require.False(t, noop)
	assert.Equal(t, models.EntitlementStatusActive, *ch.Status)
	assert.Equal(t, t2, *ch.PeriodEnd)
	assert.Nil(t, ch.PlanID, "invoice without mapping keeps the stored plan")
}

func TestApply_InvoiceRecoversPastDue(t *testing.T) {
	current := entitlement(models.EntitlementStatusPastDue, "sub_1", &t0)
	ev := invoiceEvent("evt_2", "cus_1", "sub_1", t2.Unix(), t1)

	ch, noop := Apply(current, ev, nil, "", 7)
	require.False(t, noop)
	assert.Equal(t, models.EntitlementStatusActive, *ch.Status)
}

func TestApply_InvoiceBeforeCheckoutCreates(t *testing.T) {
	ev := invoiceEvent("evt_2", "cus_1", "sub_1", t2.Unix(), t1)

	ch, noop := Apply(nil, ev, nil, "", 7)
	require.False(t, noop, "an invoice arriving before the checkout must still grant access")
	assert.Equal(t, models.EntitlementStatusActive, *ch.Status)
	assert.Equal(t, "sub_1", ch.SubscriptionID)
}

func TestApply_OneOffInvoiceIsNoop(t *testing.T) {
	ev := invoiceEvent("evt_2", "cus_1", "", 0, t1)
	_, noop := Apply(nil, ev, nil, "", 7)
	assert.True(t, noop)
}

func TestApply_SubscriptionDeleted(t *testing.T) {
	current := entitlement(models.EntitlementStatusActive, "sub_1", &t0)
	ev := subscriptionEvent("evt_3", EventSubscriptionDeleted, "sub_1", "cus_1", "canceled", t1)

	ch, noop := Apply(current, ev, nil, "", 7)
	require.False(t, noop)
	assert.Equal(t, models.EntitlementStatusCanceled, *ch.Status)
	assert.Nil(t, ch.PeriodEnd)
}

func TestApply_SubscriptionDeletedNothingToCancel(t *testing.T) {
	ev := subscriptionEvent("evt_3", EventSubscriptionDeleted, "sub_1", "cus_1", "canceled", t1)
	_, noop := Apply(nil, ev, nil, "", 7)
	assert.True(t, noop)
}

func TestApply_SubscriptionDeletedForReplacedSubscription(t *testing.T) {
	current := entitlement(models.EntitlementStatusActive, "sub_2", &t1)
	ev := subscriptionEvent("evt_3", EventSubscriptionDeleted, "sub_1", "cus_1", "canceled", t2)

	_, noop := Apply(current, ev, nil, "", 7)
	assert.True(t, noop, "cancelling an old subscription must not touch the newer one")
}

func TestApply_StaleEventRejected(t *testing.T) {
	current := entitlement(models.EntitlementStatusActive, "sub_1", &t2)

	// Same subscription, older than the last applied event.
	ev := subscriptionEvent("evt_4", EventSubscriptionUpdated, "sub_1", "cus_1", "past_due", t1)
	_, noop := Apply(current, ev, nil, "", 7)
	assert.True(t, noop)

	// Equal timestamps are rejected too: not strictly newer.
	ev = subscriptionEvent("evt_5", EventSubscriptionUpdated, "sub_1", "cus_1", "past_due", t2)
	_, noop = Apply(current, ev, nil, "", 7)
	assert.True(t, noop)
}

func TestApply_CanceledIsTerminalPerSubscription(t *testing.T) {
	current := entitlement(models.EntitlementStatusCanceled, "sub_1", &t1)

	ev := subscriptionEvent("evt_6", EventSubscriptionUpdated, "sub_1", "cus_1", "active", t2)
	_, noop := Apply(current, ev, nil, "", 7)
	assert.True(t, noop)

	ev = invoiceEvent("evt_7", "cus_1", "sub_1", t2.Unix(), t2)
	_, noop = Apply(current, ev, nil, "", 7)
	assert.True(t, noop)
}

func TestApply_NewSubscriptionReenters(t *testing.T) {
	current := entitlement(models.EntitlementStatusCanceled, "sub_1", &t1)
	snap := &SubscriptionSnapshot{ID: "sub_2", Customer: "cus_1", Status: "active", PriceID: "price_pro"}
	ev := checkoutEvent("evt_8", CheckoutModeSubscription, "cus_1", "sub_2", nil, t2)

	ch, noop := Apply(current, ev, snap, "pro", 7)
	require.False(t, noop, "a new subscription id re-enters after cancel")
	assert.Equal(t, models.EntitlementStatusActive, *ch.Status)
	assert.Equal(t, "sub_2", ch.SubscriptionID)
}

func TestApply_UpdateForOtherSubscriptionOnlyWhenNewer(t *testing.T) {
	current := entitlement(models.EntitlementStatusActive, "sub_2", &t1)

	older := subscriptionEvent("evt_9", EventSubscriptionUpdated, "sub_1", "cus_1", "active", t0)
	_, noop := Apply(current, older, nil, "", 7)
	assert.True(t, noop)

	newer := subscriptionEvent("evt_10", EventSubscriptionUpdated, "sub_3", "cus_1", "active", t2)
	ch, noop := Apply(current, newer, nil, "", 7)
	require.False(t, noop)
	assert.Equal(t, "sub_3", ch.SubscriptionID)
}
