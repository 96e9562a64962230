package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

type ShowHandler struct {
	svc *service.ShowService
}

func NewShowHandler(svc *service.ShowService) *ShowHandler {
	return &ShowHandler{svc: svc}
}

// RecordView handles POST /api/shows/:showId/views
func (h *ShowHandler) RecordView(c fiber.Ctx) error {
	showID, msg := middleware.ValidateID("showId", c.Params("showId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}

	views, err := h.svc.RecordView(c.Context(), showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"showId": showID, "viewCount": views})
}
