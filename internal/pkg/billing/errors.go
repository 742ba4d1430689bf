package billing

import "errors"

// Error kinds processed events can fail with. The webhook controller derives
// the HTTP outcome from these; nothing is inferred from logging side effects.
var (
	// ErrSignatureInvalid: the signature header is missing, malformed or does
	// not match the raw body. Terminal, never retried by the processor.
	ErrSignatureInvalid = errors.New("billing: webhook signature invalid")

	// ErrSignatureStale: the timestamp embedded in the signature header is
	// outside the replay tolerance window.
	ErrSignatureStale = errors.New("billing: webhook signature timestamp outside tolerance")

	// ErrPayloadInvalid: the body passed signature verification but cannot be
	// decoded into an event envelope.
	ErrPayloadInvalid = errors.New("billing: webhook payload invalid")

	// ErrUnresolvable: the event cannot be mapped to an internal user through
	// any resolution strategy. Acked to the processor, queued for manual
	// reconciliation.
	ErrUnresolvable = errors.New("billing: event not resolvable to a user")

	// ErrEventInFlight: a concurrent delivery of the same event holds the
	// pending ledger admission. Answered non-2xx so the processor retries
	// after the first attempt settles.
	ErrEventInFlight = errors.New("billing: event is already being processed")

	// ErrProcessorUnavailable: the subscription snapshot fetch failed.
	// Transient; answered non-2xx to trigger redelivery.
	ErrProcessorUnavailable = errors.New("billing: payment processor unavailable")

	// ErrStoreUnavailable: persistence failed. Transient; answered non-2xx
	// to trigger redelivery.
	ErrStoreUnavailable = errors.New("billing: entitlement store unavailable")
)
