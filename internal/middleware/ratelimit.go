package middleware

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/service"
	"github.com/setlistvote/setlistvote/pkg/hash"
)

// RateLimitConfig defines the limit for a specific route or group.
type RateLimitConfig struct {
	Limiter  *service.RateLimiter
	Resource string                   // Counter namespace, e.g. "read"
	KeyFn    func(c fiber.Ctx) string // Returns the key to rate limit on (IP, userID, etc.)
}

// NewRateLimit returns a Fiber middleware enforcing cfg. When the counter
// store is unreachable the request is let through.
func NewRateLimit(cfg RateLimitConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		res, err := cfg.Limiter.Check(c.Context(), cfg.KeyFn(c), cfg.Resource)
		if err != nil {
			Logger.Warn().Err(err).Str("resource", cfg.Resource).Msg("rate limiter unavailable, allowing request")
			return c.Next()
		}

		setRateLimitHeaders(c, res)
		if !res.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(res.ResetSeconds))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"code":       string(service.CodeRateLimited),
					"message":    fmt.Sprintf("Too many requests. Try again in %d seconds.", res.ResetSeconds),
					"retryAfter": res.ResetSeconds,
				},
			})
		}
		return c.Next()
	}
}

func setRateLimitHeaders(c fiber.Ctx, res service.RateLimitResult) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Set("X-RateLimit-Reset", strconv.Itoa(res.ResetSeconds))
}

// KeyByIP returns a hashed client IP as the rate limit key.
func KeyByIP(c fiber.Ctx) string {
	return "ip:" + hash.Prefix(c.IP(), 16)
}

// KeyByUserID keys on the resolved identity, falling back to the client IP.
func KeyByUserID(c fiber.Ctx) string {
	if uid := UserID(c); uid != "" {
		return "user:" + uid
	}
	return KeyByIP(c)
}
