package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

// resolveUser picks the acting user: the verified identity when present,
// otherwise the id the client supplied, if client-supplied ids are trusted.
// On failure it returns a status and code for the error envelope.
func resolveUser(c fiber.Ctx, claimed string, trustClaimed bool) (string, int, string, string) {
	if uid := middleware.UserID(c); uid != "" {
		if claimed != "" && claimed != uid {
			return "", fiber.StatusForbidden, string(service.CodeForbidden), "userId does not match the authenticated user"
		}
		return uid, 0, "", ""
	}
	if !trustClaimed {
		return "", fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"
	}
	id, msg := middleware.ValidateID("userId", claimed)
	if msg != "" {
		return "", fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg
	}
	return id, 0, "", ""
}
