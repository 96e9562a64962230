package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/service"
)

// StatusOf maps a coordinator error code to its HTTP status.
func StatusOf(code service.Code) int {
	switch code {
	case service.CodeRateLimited, service.CodeQuotaExceeded:
		return fiber.StatusTooManyRequests
	case service.CodeConflict:
		return fiber.StatusConflict
	case service.CodeNotFound:
		return fiber.StatusNotFound
	case service.CodeForbidden:
		return fiber.StatusForbidden
	case service.CodeInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusServiceUnavailable
	}
}

// writeError renders a service error as the standard error envelope.
func writeError(c fiber.Ctx, err error) error {
	body := service.ErrorBodyOf(err)
	if body.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(body.RetryAfter))
	}
	return c.Status(StatusOf(service.Code(body.Code))).JSON(fiber.Map{"error": body})
}
