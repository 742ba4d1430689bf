package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// IdentityResolver maps the external customer/subscription identifiers on an
// event to an internal user id. Strategies are tried in order:
//
//  1. an explicit reference our checkout flow attached to the session
//     (client_reference_id or metadata), carried on the event itself;
//  2. metadata on the processor-side subscription, which costs one snapshot
//     fetch when the event does not embed it;
//  3. a reverse lookup in the entitlement store by stored external customer id.
//
// This is where a silent failure would mean a paying user never receives
// access, so an unresolvable event is returned as ErrUnresolvable with the
// full external references and the caller routes it to manual
// reconciliation instead of dropping it.
type IdentityResolver struct {
	repo    Repository
	fetcher SubscriptionFetcher
}

func NewIdentityResolver(repo Repository, fetcher SubscriptionFetcher) *IdentityResolver {
	return &IdentityResolver{repo: repo, fetcher: fetcher}
}

// Resolve returns the internal user id for an event. When resolution fetched
// a subscription snapshot it is returned too, so the caller does not fetch
// it a second time.
func (r *IdentityResolver) Resolve(ctx context.Context, ev *Event) (uint, *SubscriptionSnapshot, error) {
	// Strategy 1: reference carried on the event itself.
	if userID, ok := r.directReference(ev); ok {
		exists, err := r.repo.UserExists(userID)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: user lookup: %v", ErrStoreUnavailable, err)
		}
		if exists {
			return userID, nil, nil
		}
		log.Warnf("[Billing] event %s references user %d which does not exist", ev.ID, userID)
	}

	// Strategy 2: metadata on the processor-side subscription.
	var snap *SubscriptionSnapshot
	var fetchErr error
	if subID := ev.SubscriptionID(); subID != "" && r.fetcher != nil {
		snap, fetchErr = r.fetcher.RetrieveSubscription(ctx, subID)
		if fetchErr != nil {
			log.Warnf("[Billing] event %s: snapshot fetch for %s failed: %v", ev.ID, subID, fetchErr)
		} else if userID, ok := parseUserID(snap.Metadata[userMetadataKey]); ok {
			exists, err := r.repo.UserExists(userID)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: user lookup: %v", ErrStoreUnavailable, err)
			}
			if exists {
				return userID, snap, nil
			}
			log.Warnf("[Billing] subscription %s metadata references user %d which does not exist", subID, userID)
		}
	}

	// Strategy 3: reverse lookup by stored external customer id.
	if cust := ev.CustomerID(); cust != "" {
		ents, err := r.repo.FindEntitlementsByCustomerID(cust)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: entitlement lookup: %v", ErrStoreUnavailable, err)
		}
		if len(ents) > 1 {
			log.Warnf("[Billing] customer %s maps to %d entitlements, using the most recently updated", cust, len(ents))
		}
		if len(ents) > 0 {
			return ents[0].UserID, snap, nil
		}
	}

	// A transient snapshot failure must surface as retryable, not as
	// unresolvable: acknowledging would drop the event forever while a
	// redelivery might still resolve it.
	if fetchErr != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, fetchErr)
	}

	return 0, snap, fmt.Errorf("%w: event=%s customer=%s subscription=%s",
		ErrUnresolvable, ev.ID, ev.CustomerID(), ev.SubscriptionID())
}

func (r *IdentityResolver) directReference(ev *Event) (uint, bool) {
	if ev.Checkout != nil {
		if id, ok := parseUserID(ev.Checkout.ClientReferenceID); ok {
			return id, true
		}
		if id, ok := parseUserID(ev.Checkout.Metadata[userMetadataKey]); ok {
			return id, true
		}
	}
	if ev.Subscription != nil {
		if id, ok := parseUserID(ev.Subscription.Metadata[userMetadataKey]); ok {
			return id, true
		}
	}
	return 0, false
}

func parseUserID(raw string) (uint, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
