package billing

import (
	"strings"
	"time"

	"github.com/JonasWeber/NomadBase/app/models"
)

// Change is the persistence patch computed by Apply. Nil optional fields are
// left untouched by the store; AddItems is a monotonic union into the
// purchased-items set. SubscriptionID and EventTime parameterize the
// conditional write: the store only applies the patch when no newer event
// for the same external subscription has already been recorded.
type Change struct {
	UserID         uint
	EventID        string
	SubscriptionID string
	EventTime      time.Time

	Status     *string
	PlanID     *string
	CustomerID *string
	PeriodEnd  *time.Time

	AddItems []string
}

// touchesSubscription reports whether the patch writes subscription state
// (and therefore moves the stale-write guard).
func (ch *Change) touchesSubscription() bool {
	return ch.Status != nil
}

// Apply computes the next entitlement state for a resolved user and a typed
// event. It is a pure function; persistence is the caller's responsibility.
// The second return is true when the event must be treated as a no-op
// (stale, terminal for its subscription id, or nothing to change).
//
// State graph per subscription id:
//
//	none -> trialing|active -> past_due -> active (recovered) | canceled
//
// canceled and none are terminal for a given subscription id; a later new
// subscription id for the same user re-enters at trialing|active.
func Apply(current *models.UserEntitlement, ev *Event, snap *SubscriptionSnapshot, internalPlan string, userID uint) (*Change, bool) {
	switch {
	case ev.Checkout != nil && ev.Checkout.Mode == CheckoutModePayment:
		return applyOneTimePurchase(ev, userID)
	case ev.Checkout != nil && ev.Checkout.Mode == CheckoutModeSubscription:
		return applySubscriptionCheckout(current, ev, snap, internalPlan, userID)
	case ev.Invoice != nil:
		return applyInvoicePaid(current, ev, internalPlan, userID)
	case ev.Subscription != nil:
		return applySubscriptionChange(current, ev, internalPlan, userID)
	}
	return nil, true
}

// applyOneTimePurchase adds the purchased report to the user's item set.
// Status is never touched and the stale-write guard does not apply: set
// union is commutative, so delivery order cannot corrupt it.
func applyOneTimePurchase(ev *Event, userID uint) (*Change, bool) {
	reportID := strings.TrimSpace(ev.Checkout.Metadata[reportMetadataKey])
	if reportID == "" {
		return nil, true
	}
	ch := &Change{
		UserID:    userID,
		EventID:   ev.ID,
		EventTime: ev.OccurredAt,
		AddItems:  []string{reportID},
	}
	if cust := strings.TrimSpace(ev.Checkout.Customer); cust != "" {
		ch.CustomerID = &cust
	}
	return ch, false
}

func applySubscriptionCheckout(current *models.UserEntitlement, ev *Event, snap *SubscriptionSnapshot, internalPlan string, userID uint) (*Change, bool) {
	if snap == nil {
		return nil, true
	}
	subID := strings.TrimSpace(ev.Checkout.Subscription)
	if subID == "" {
		subID = snap.ID
	}
	if rejectedByGuard(current, subID, ev.OccurredAt) {
		return nil, true
	}

	status := statusFromProcessor(snap.Status)
	cust := strings.TrimSpace(ev.Checkout.Customer)
	if cust == "" {
		cust = snap.Customer
	}

	ch := &Change{
		UserID:         userID,
		EventID:        ev.ID,
		SubscriptionID: subID,
		EventTime:      ev.OccurredAt,
		Status:         &status,
		PlanID:         &internalPlan,
		PeriodEnd:      snap.CurrentPeriodEnd,
	}
	if cust != "" {
		ch.CustomerID = &cust
	}
	return ch, false
}

// applyInvoicePaid confirms or extends active access. This is also the
// recovery path out of past_due. An invoice arriving before the checkout
// event creates the entitlement rather than dropping paid access.
func applyInvoicePaid(current *models.UserEntitlement, ev *Event, internalPlan string, userID uint) (*Change, bool) {
	subID := strings.TrimSpace(ev.Invoice.Subscription)
	if subID == "" {
		// One-off invoices carry no subscription and no entitlement change.
		return nil, true
	}
	if rejectedByGuard(current, subID, ev.OccurredAt) {
		return nil, true
	}

	status := models.EntitlementStatusActive
	ch := &Change{
		UserID:         userID,
		EventID:        ev.ID,
		SubscriptionID: subID,
		EventTime:      ev.OccurredAt,
		Status:         &status,
	}
	if internalPlan != "" {
		ch.PlanID = &internalPlan
	}
	if cust := strings.TrimSpace(ev.Invoice.Customer); cust != "" {
		ch.CustomerID = &cust
	}
	if ev.Invoice.PeriodEnd > 0 {
		t := time.Unix(ev.Invoice.PeriodEnd, 0)
		ch.PeriodEnd = &t
	}
	return ch, false
}

func applySubscriptionChange(current *models.UserEntitlement, ev *Event, internalPlan string, userID uint) (*Change, bool) {
	sub := ev.Subscription
	subID := strings.TrimSpace(sub.ID)
	if subID == "" {
		return nil, true
	}
	if rejectedByGuard(current, subID, ev.OccurredAt) {
		return nil, true
	}

	deleted := ev.Type == EventSubscriptionDeleted
	if deleted {
		// Cancelling something we never granted, or a subscription the user
		// has already replaced, changes nothing.
		if current == nil || current.ExternalSubscriptionID != subID {
			return nil, true
		}
	} else if current != nil && current.ExternalSubscriptionID != subID {
		// Status update for a subscription other than the recorded one:
		// adopt it only when it is strictly newer than the recorded state,
		// so an out-of-order update for a replaced subscription cannot
		// revert the newer one.
		if current.LastEventAt != nil && !ev.OccurredAt.After(*current.LastEventAt) {
			return nil, true
		}
	}

	status := models.EntitlementStatusCanceled
	if !deleted {
		status = statusFromProcessor(sub.Status)
	}

	ch := &Change{
		UserID:         userID,
		EventID:        ev.ID,
		SubscriptionID: subID,
		EventTime:      ev.OccurredAt,
		Status:         &status,
	}
	if !deleted {
		if internalPlan != "" {
			ch.PlanID = &internalPlan
		}
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0)
			ch.PeriodEnd = &t
		}
	}
	if cust := strings.TrimSpace(sub.Customer); cust != "" {
		ch.CustomerID = &cust
	}
	return ch, false
}

// rejectedByGuard implements the stale-write and terminal-state checks for a
// subscription-stream event against the currently stored entitlement.
func rejectedByGuard(current *models.UserEntitlement, subID string, eventTime time.Time) bool {
	if current == nil || subID == "" || current.ExternalSubscriptionID != subID {
		return false
	}
	// canceled is terminal for this subscription id.
	if current.Status == models.EntitlementStatusCanceled {
		return true
	}
	// Reject anything not strictly newer than the last applied event.
	return current.LastEventAt != nil && !eventTime.After(*current.LastEventAt)
}
