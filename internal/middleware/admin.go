package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"
)

// NewAdminGuard requires the X-Admin-Token header to equal token. An empty
// token leaves the route open, which is only meant for local development.
func NewAdminGuard(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		got := c.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Admin token required")
		}
		return c.Next()
	}
}
