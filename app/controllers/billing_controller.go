package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeber/NomadBase/internal/pkg/billing"
)

// BillingController owns the billing webhook endpoint. The service handle
// and configuration are injected once at startup; the controller holds no
// global state.
type BillingController struct {
	svc *billing.Service
	cfg billing.Config
	now func() time.Time
}

func NewBillingController(svc *billing.Service, cfg billing.Config) *BillingController {
	return &BillingController{svc: svc, cfg: cfg, now: time.Now}
}

// HandleBillingWebhook receives asynchronous notifications from the billing
// processor. The raw body is used for signature verification as received;
// every HTTP outcome is derived from a typed error:
//
//	400  signature or payload invalid, redelivery can never succeed
//	200  applied, safe no-op, duplicate, unhandled type, or unresolvable
//	     (acked to stop retries, queued for manual reconciliation)
//	500  transient failure, the explicit redelivery signal
func (bc *BillingController) HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	if err := billing.VerifyStripeSignature(rawBody, signature, bc.cfg.WebhookSecret, bc.cfg.SignatureTolerance, bc.now()); err != nil {
		log.Warnf("[Billing] rejected webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := billing.ParseEvent(rawBody)
	if err != nil {
		log.Warnf("[Billing] rejected webhook with valid signature: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.cfg.ProcessTimeout)
	defer cancel()

	outcome, err := bc.svc.ProcessEvent(ctx, ev, rawBody)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrEventInFlight):
			// A concurrent delivery holds the admission; the processor
			// retries after the first attempt settles.
			log.Warnf("[Billing] event %s is in flight, requesting redelivery", ev.ID)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_in_flight"})
		case errors.Is(err, billing.ErrProcessorUnavailable):
			log.Errorf("[Billing] event %s: %v", ev.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processor_unavailable"})
		default:
			log.Errorf("[Billing] event %s: %v", ev.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": outcome})
}
