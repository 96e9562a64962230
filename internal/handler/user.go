package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

type UserHandler struct {
	svc *service.SetlistService
}

func NewUserHandler(svc *service.SetlistService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Stats handles GET /api/users/:userId/stats?showId=
func (h *UserHandler) Stats(c fiber.Ctx) error {
	userID, msg := middleware.ValidateID("userId", c.Params("userId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}
	showID, msg := middleware.ValidateID("showId", c.Query("showId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}

	stats, err := h.svc.UserStats(c.Context(), userID, showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(stats)
}
