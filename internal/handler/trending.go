package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

type TrendingHandler struct {
	scorer *service.TrendScorer
}

func NewTrendingHandler(scorer *service.TrendScorer) *TrendingHandler {
	return &TrendingHandler{scorer: scorer}
}

// Top handles GET /api/trending?limit=
func (h *TrendingHandler) Top(c fiber.Ctx) error {
	limit, msg := middleware.ParseLimit(c.Query("limit"), service.TopTrendingLen, 100)
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}

	shows, err := h.scorer.TopTrending(c.Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"shows": shows})
}

// Recompute handles POST /api/admin/trending/recompute
func (h *TrendingHandler) Recompute(c fiber.Ctx) error {
	res, err := h.scorer.Recompute(c.Context())
	if errors.Is(err, service.ErrRecomputeRunning) {
		return middleware.ErrorResponse(c, fiber.StatusConflict, string(service.CodeConflict), "A recompute is already running")
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}
