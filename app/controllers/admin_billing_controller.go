package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeber/NomadBase/internal/pkg/billing"
	"github.com/JonasWeber/NomadBase/internal/pkg/entitlements"
	"github.com/JonasWeber/NomadBase/internal/pkg/reconcile"
)

// AdminBillingController exposes the operator surface: the backlog of
// events that could not be mapped to a user, and a manual resync that
// refetches processor-side state for one user.
type AdminBillingController struct {
	svc   *billing.Service
	queue *reconcile.Queue
}

func NewAdminBillingController(svc *billing.Service, queue *reconcile.Queue) *AdminBillingController {
	return &AdminBillingController{svc: svc, queue: queue}
}

// HandleListReconciliation returns pending manual-reconciliation tasks.
func (ac *AdminBillingController) HandleListReconciliation(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", "100"), 10, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tasks, err := ac.queue.List(ctx, limit)
	if err != nil {
		log.Errorf("[Admin] listing reconciliation tasks failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_list_failed"})
	}
	total, err := ac.queue.Len(ctx)
	if err != nil {
		total = int64(len(tasks))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"total": total, "tasks": tasks})
}

// HandleResyncUser refetches the user's subscription snapshot from the
// processor and re-applies it to the entitlement record.
func (ac *AdminBillingController) HandleResyncUser(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userID"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ent, err := ac.svc.ResyncUser(ctx, uint(userID))
	if err != nil {
		log.Errorf("[Admin] resync for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resync_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id": ent.UserID,
		"status":  ent.Status,
		"plan":    entitlements.EffectivePlan(ent),
	})
}

// HandleGetEntitlement returns the stored entitlement and purchased reports
// for one user.
func (ac *AdminBillingController) HandleGetEntitlement(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userID"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	ent, items, err := ac.svc.Entitlement(uint(userID))
	if err != nil {
		log.Errorf("[Admin] entitlement read for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_read_failed"})
	}
	if ent == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_entitlement"})
	}

	reportIDs := make([]string, 0, len(items))
	for _, it := range items {
		reportIDs = append(reportIDs, it.ItemID)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":            ent.UserID,
		"status":             ent.Status,
		"plan":               entitlements.EffectivePlan(ent),
		"current_period_end": ent.CurrentPeriodEnd,
		"purchased_reports":  reportIDs,
	})
}
