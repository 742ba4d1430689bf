package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types this service models. Anything else parses into an unhandled
// event that is acknowledged, never errored, so the processor does not retry
// it forever.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// reportMetadataKey is the checkout metadata key carrying the purchased
// city cost report id for one-time payments.
const reportMetadataKey = "report_id"

// userMetadataKey is the metadata key our checkout flow attaches to sessions
// and subscriptions to carry the internal user id.
const userMetadataKey = "user_id"

// Event is a parsed billing event. Exactly one of the variant pointers is
// set for a handled type; all nil means the type is not modeled here.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time

	Checkout     *CheckoutSession
	Invoice      *Invoice
	Subscription *Subscription
}

// CheckoutSession is the object of a checkout.session.completed event.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Invoice is the object of an invoice.payment_succeeded event.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	BillingRsn   string `json:"billing_reason"`
	PeriodEnd    int64  `json:"period_end"`
	Paid         bool   `json:"paid"`
}

// Subscription is the object of customer.subscription.* events.
type Subscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the price reference of the first subscription item.
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified raw webhook body into a typed event. Unknown
// event types parse successfully with no variant set; only malformed JSON or
// a missing event id is a payload error.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrPayloadInvalid)
	}

	ev := &Event{
		ID:         strings.TrimSpace(env.ID),
		Type:       strings.TrimSpace(env.Type),
		OccurredAt: time.Unix(env.Created, 0),
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		var cs CheckoutSession
		if err := json.Unmarshal(env.Data.Object, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrPayloadInvalid, err)
		}
		ev.Checkout = &cs
	case EventInvoicePaid:
		var inv Invoice
		if err := json.Unmarshal(env.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", ErrPayloadInvalid, err)
		}
		ev.Invoice = &inv
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(env.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrPayloadInvalid, err)
		}
		ev.Subscription = &sub
	}

	return ev, nil
}

// Handled reports whether the event type is modeled by this service.
func (e *Event) Handled() bool {
	return e.Checkout != nil || e.Invoice != nil || e.Subscription != nil
}

// SubscriptionID returns the external subscription id referenced by the
// event, if any.
func (e *Event) SubscriptionID() string {
	switch {
	case e.Checkout != nil:
		return e.Checkout.Subscription
	case e.Invoice != nil:
		return e.Invoice.Subscription
	case e.Subscription != nil:
		return e.Subscription.ID
	}
	return ""
}

// CustomerID returns the external customer id referenced by the event, if any.
func (e *Event) CustomerID() string {
	switch {
	case e.Checkout != nil:
		return e.Checkout.Customer
	case e.Invoice != nil:
		return e.Invoice.Customer
	case e.Subscription != nil:
		return e.Subscription.Customer
	}
	return ""
}
