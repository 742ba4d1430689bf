package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JonasWeber/NomadBase/app/models"
)

// Processing outcomes as acknowledged to the processor. All of them answer
// HTTP 200; the distinction exists for the ledger and the response detail.
const (
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeDuplicate  = "duplicate"
	OutcomeIgnored    = "ignored"
	OutcomeUnresolved = "unresolved"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// ReconcileEnqueuer flags an event for manual reconciliation when no
// resolution strategy could map it to a user.
type ReconcileEnqueuer interface {
	PushUnresolved(ctx context.Context, eventID, eventType, customerID, subscriptionID, reason string) error
}

// Service processes verified, parsed billing events end to end: ledger
// admission, identity resolution, state machine, conditional persistence,
// ledger commit. All collaborators are injected; the service holds no
// global state.
type Service struct {
	repo      Repository
	resolver  *IdentityResolver
	fetcher   SubscriptionFetcher
	reconcile ReconcileEnqueuer
}

func NewService(repo Repository, fetcher SubscriptionFetcher, reconcile ReconcileEnqueuer) *Service {
	return &Service{
		repo:      repo,
		resolver:  NewIdentityResolver(repo, fetcher),
		fetcher:   fetcher,
		reconcile: reconcile,
	}
}

// NewServiceFromDB creates a billing service from a GORM handle with the
// default repository.
func NewServiceFromDB(db *gorm.DB, fetcher SubscriptionFetcher, reconcile ReconcileEnqueuer) *Service {
	return NewService(NewRepository(db), fetcher, reconcile)
}

// ProcessEvent runs one event through the pipeline. The returned outcome is
// only meaningful when err is nil; any non-nil error maps to a retryable
// (non-2xx) response except ErrUnresolvable, which is acknowledged after
// being queued for manual reconciliation.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event, rawBody []byte) (string, error) {
	adm, err := s.repo.BeginEvent(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		if errors.Is(err, ErrEventInFlight) {
			return "", err
		}
		return "", fmt.Errorf("%w: ledger admission: %v", ErrStoreUnavailable, err)
	}
	if adm.Duplicate {
		log.Infof("[Billing] event %s (%s) already processed with outcome %s", ev.ID, ev.Type, adm.Event.Outcome)
		return OutcomeDuplicate, nil
	}
	ledgerID := adm.Event.ID

	if !ev.Handled() {
		log.Infof("[Billing] event %s has unhandled type %s, acknowledging", ev.ID, ev.Type)
		s.commit(ledgerID, models.WebhookOutcomeNoop, nil)
		return OutcomeIgnored, nil
	}

	userID, snap, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		return s.failedResolution(ctx, ledgerID, ev, err)
	}

	// A subscription checkout needs the processor-side snapshot to know
	// whether the subscription entered trialing or active.
	if ev.Checkout != nil && ev.Checkout.Mode == CheckoutModeSubscription && snap == nil {
		subID := ev.SubscriptionID()
		if subID == "" {
			log.Warnf("[Billing] event %s: subscription checkout without subscription id", ev.ID)
			s.commit(ledgerID, models.WebhookOutcomeNoop, nil)
			return OutcomeNoop, nil
		}
		snap, err = s.fetcher.RetrieveSubscription(ctx, subID)
		if err != nil {
			s.commit(ledgerID, models.WebhookOutcomeFailed, err)
			return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
	}

	internalPlan, err := s.resolvePlan(ev, snap)
	if err != nil {
		s.commit(ledgerID, models.WebhookOutcomeFailed, err)
		return "", fmt.Errorf("%w: plan mapping: %v", ErrStoreUnavailable, err)
	}

	current, err := s.repo.GetEntitlement(userID)
	if err != nil {
		s.commit(ledgerID, models.WebhookOutcomeFailed, err)
		return "", fmt.Errorf("%w: entitlement read: %v", ErrStoreUnavailable, err)
	}

	ch, noop := Apply(current, ev, snap, internalPlan, userID)
	if noop {
		log.Infof("[Billing] event %s (%s) for user %d is a no-op", ev.ID, ev.Type, userID)
		s.commit(ledgerID, models.WebhookOutcomeNoop, nil)
		return OutcomeNoop, nil
	}

	// An ambiguous success is unrecoverable: the processor would never
	// redeliver an event that may not have been applied. Bail out with a
	// retryable error while that is still safe.
	if ctx.Err() != nil {
		s.commit(ledgerID, models.WebhookOutcomeFailed, ctx.Err())
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}

	applied, err := s.repo.ApplyChange(ch)
	if err != nil {
		s.commit(ledgerID, models.WebhookOutcomeFailed, err)
		return "", fmt.Errorf("%w: entitlement write: %v", ErrStoreUnavailable, err)
	}
	if !applied {
		// A concurrent delivery carrying newer state won the conditional
		// write; the stored entitlement is already correct.
		s.commit(ledgerID, models.WebhookOutcomeNoop, nil)
		return OutcomeNoop, nil
	}

	if err := s.repo.CommitEvent(ledgerID, models.WebhookOutcomeApplied, nil); err != nil {
		// The entitlement write stuck but the ledger still says pending; the
		// next delivery re-admits and converges to a no-op.
		return "", fmt.Errorf("%w: ledger commit: %v", ErrStoreUnavailable, err)
	}
	log.Infof("[Billing] event %s (%s) applied for user %d", ev.ID, ev.Type, userID)
	return OutcomeApplied, nil
}

// ResyncUser refetches the processor-side subscription for a user and
// re-applies it, used by the admin reconciliation surface.
func (s *Service) ResyncUser(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	current, err := s.repo.GetEntitlement(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: entitlement read: %v", ErrStoreUnavailable, err)
	}
	if current == nil || strings.TrimSpace(current.ExternalSubscriptionID) == "" {
		return nil, errors.New("user has no linked subscription to resync")
	}

	snap, err := s.fetcher.RetrieveSubscription(ctx, current.ExternalSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	internalPlan := s.planForPriceRef(snap.PriceID)
	status := statusFromProcessor(snap.Status)
	ch := &Change{
		UserID:         userID,
		EventID:        "resync:" + snap.ID,
		SubscriptionID: snap.ID,
		EventTime:      nowFunc(),
		Status:         &status,
		PeriodEnd:      snap.CurrentPeriodEnd,
	}
	if internalPlan != "" {
		ch.PlanID = &internalPlan
	}
	if snap.Customer != "" {
		cust := snap.Customer
		ch.CustomerID = &cust
	}
	if _, err := s.repo.ApplyChange(ch); err != nil {
		return nil, fmt.Errorf("%w: entitlement write: %v", ErrStoreUnavailable, err)
	}
	return s.repo.GetEntitlement(userID)
}

// Entitlement returns the stored entitlement and purchased items for a user.
func (s *Service) Entitlement(userID uint) (*models.UserEntitlement, []models.EntitlementItem, error) {
	ent, err := s.repo.GetEntitlement(userID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListItems(userID)
	if err != nil {
		return nil, nil, err
	}
	return ent, items, nil
}

func (s *Service) failedResolution(ctx context.Context, ledgerID uint, ev *Event, resolveErr error) (string, error) {
	if !errors.Is(resolveErr, ErrUnresolvable) {
		s.commit(ledgerID, models.WebhookOutcomeFailed, resolveErr)
		return "", resolveErr
	}

	// Acknowledge rather than letting the processor retry forever against
	// the same unresolvable data, but never drop it silently: the error log
	// plus the reconcile queue are the path to a delayed grant.
	log.Errorf("[Billing] unresolvable event %s (%s): customer=%s subscription=%s",
		ev.ID, ev.Type, ev.CustomerID(), ev.SubscriptionID())
	if s.reconcile != nil {
		if err := s.reconcile.PushUnresolved(ctx, ev.ID, ev.Type, ev.CustomerID(), ev.SubscriptionID(), resolveErr.Error()); err != nil {
			log.Errorf("[Billing] failed to queue event %s for reconciliation: %v", ev.ID, err)
		}
	}
	s.commit(ledgerID, models.WebhookOutcomeFailed, resolveErr)
	return OutcomeUnresolved, nil
}

func (s *Service) resolvePlan(ev *Event, snap *SubscriptionSnapshot) (string, error) {
	ref := ""
	if snap != nil {
		ref = snap.PriceID
	}
	if ref == "" && ev.Subscription != nil {
		ref = ev.Subscription.PriceID()
	}
	if ref == "" {
		return "", nil
	}

	m, err := s.repo.FindActivePlanMapping(models.BillingProviderStripe, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] no plan mapping for price %s, recording raw reference", ref)
			return ref, nil
		}
		return "", err
	}
	return normalizePlan(m.InternalPlan), nil
}

func (s *Service) planForPriceRef(ref string) string {
	if strings.TrimSpace(ref) == "" {
		return ""
	}
	m, err := s.repo.FindActivePlanMapping(models.BillingProviderStripe, ref)
	if err != nil {
		return ref
	}
	return normalizePlan(m.InternalPlan)
}

func (s *Service) commit(ledgerID uint, outcome string, procErr error) {
	if err := s.repo.CommitEvent(ledgerID, outcome, procErr); err != nil {
		log.Errorf("[Billing] failed to commit ledger row %d with outcome %s: %v", ledgerID, outcome, err)
	}
}
