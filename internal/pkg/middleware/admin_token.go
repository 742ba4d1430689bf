package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenMiddleware guards the internal admin API with a shared token
// supplied via X-Admin-Token or a bearer Authorization header. The compare
// is constant-time.
func AdminTokenMiddleware(token string) fiber.Handler {
	expected := strings.TrimSpace(token)
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_api_disabled"})
		}
		got := extractAdminToken(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}

func extractAdminToken(c *fiber.Ctx) string {
	if t := strings.TrimSpace(c.Get("X-Admin-Token")); t != "" {
		return t
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
