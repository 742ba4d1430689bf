package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeber/NomadBase/app/controllers"
)

type HttpRouter struct {
	billing *controllers.BillingController
}

func NewHttpRouter(billing *controllers.BillingController) HttpRouter {
	return HttpRouter{billing: billing}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Billing processor webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/billing", h.billing.HandleBillingWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}
