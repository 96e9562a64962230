package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

// Browsers send the bearer token or X-User-ID on every call, and the live
// streams resume with Last-Event-ID.
var corsAllowHeaders = []string{
	fiber.HeaderOrigin,
	fiber.HeaderContentType,
	fiber.HeaderAccept,
	fiber.HeaderAuthorization,
	"Last-Event-ID",
	"X-User-ID",
}

// Vote clients back off on these.
var corsExposeHeaders = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	fiber.HeaderRetryAfter,
}

// NewCORS allows browser clients from the comma-separated origins list.
// An empty list or "*" allows any origin.
func NewCORS(corsOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:  splitOrigins(corsOrigins),
		AllowMethods:  []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        86400,
	})
}

func splitOrigins(list string) []string {
	var out []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
