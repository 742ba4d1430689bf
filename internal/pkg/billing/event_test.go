package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_CheckoutSubscription(t *testing.T) {
	raw := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {
			"object": {
				"id": "cs_1",
				"mode": "subscription",
				"customer": "cus_1",
				"subscription": "sub_1",
				"client_reference_id": "42",
				"metadata": {"user_id": "42"}
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.True(t, ev.Handled())
	require.NotNil(t, ev.Checkout)
	assert.Equal(t, CheckoutModeSubscription, ev.Checkout.Mode)
	assert.Equal(t, "cus_1", ev.CustomerID())
	assert.Equal(t, "sub_1", ev.SubscriptionID())
	assert.Equal(t, time.Unix(1700000000, 0), ev.OccurredAt)
}

func TestParseEvent_CheckoutOneTime(t *testing.T) {
	raw := []byte(`{
		"id": "evt_2",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {
			"object": {
				"id": "cs_2",
				"mode": "payment",
				"customer": "cus_1",
				"client_reference_id": "42",
				"metadata": {"report_id": "lisbon-2026"}
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Checkout)
	assert.Equal(t, CheckoutModePayment, ev.Checkout.Mode)
	assert.Equal(t, "lisbon-2026", ev.Checkout.Metadata["report_id"])
	assert.Empty(t, ev.SubscriptionID())
}

func TestParseEvent_Invoice(t *testing.T) {
	raw := []byte(`{
		"id": "evt_3",
		"type": "invoice.payment_succeeded",
		"created": 1700000100,
		"data": {
			"object": {
				"id": "in_1",
				"customer": "cus_1",
				"subscription": "sub_1",
				"billing_reason": "subscription_cycle",
				"period_end": 1702592100,
				"paid": true
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Invoice)
	assert.Equal(t, int64(1702592100), ev.Invoice.PeriodEnd)
	assert.Equal(t, "sub_1", ev.SubscriptionID())
}

func TestParseEvent_SubscriptionDeleted(t *testing.T) {
	raw := []byte(`{
		"id": "evt_4",
		"type": "customer.subscription.deleted",
		"created": 1700000200,
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "canceled",
				"items": {"data": [{"price": {"id": "price_pro"}}]}
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Subscription)
	assert.Equal(t, "price_pro", ev.Subscription.PriceID())
	assert.Equal(t, "sub_1", ev.SubscriptionID())
}

func TestParseEvent_UnknownTypeStillParses(t *testing.T) {
	raw := []byte(`{
		"id": "evt_5",
		"type": "customer.tax_id.created",
		"created": 1700000300,
		"data": {"object": {"id": "txi_1"}}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.False(t, ev.Handled())
	assert.Equal(t, "customer.tax_id.created", ev.Type)
	assert.Empty(t, ev.CustomerID())
}

func TestParseEvent_Invalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"checkout.session.completed","data":{"object":{}}}`, // no id
		`{"id":"evt_6","type":"checkout.session.completed","data":{"object":"nope"}}`,
	} {
		_, err := ParseEvent([]byte(raw))
		if !errors.Is(err, ErrPayloadInvalid) {
			t.Fatalf("payload %q: expected ErrPayloadInvalid, got %v", raw, err)
		}
	}
}
