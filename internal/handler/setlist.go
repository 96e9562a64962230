package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

type SetlistHandler struct {
	svc *service.SetlistService
}

func NewSetlistHandler(svc *service.SetlistService) *SetlistHandler {
	return &SetlistHandler{svc: svc}
}

// Votes handles GET /api/setlists/:setlistId/votes
func (h *SetlistHandler) Votes(c fiber.Ctx) error {
	setlistID, msg := middleware.ValidateID("setlistId", c.Params("setlistId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}

	resp, err := h.svc.SetlistVotes(c.Context(), setlistID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}
