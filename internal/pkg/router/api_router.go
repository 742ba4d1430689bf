package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeber/NomadBase/app/controllers"
	"github.com/JonasWeber/NomadBase/internal/pkg/middleware"
)

type ApiRouter struct {
	admin      *controllers.AdminBillingController
	adminToken string
}

func NewApiRouter(admin *controllers.AdminBillingController, adminToken string) ApiRouter {
	return ApiRouter{admin: admin, adminToken: adminToken}
}

func (a ApiRouter) InstallRouter(app *fiber.App) {
	group := app.Group("/api/v1/admin/billing", middleware.AdminTokenMiddleware(a.adminToken))
	group.Get("/reconciliation", a.admin.HandleListReconciliation)
	group.Get("/entitlements/:userID", a.admin.HandleGetEntitlement)
	group.Post("/resync/:userID", a.admin.HandleResyncUser)
}
