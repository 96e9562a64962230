package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/service"
)

// MaxBatchSize bounds the votes accepted in one batch request.
const MaxBatchSize = 50

type VoteHandler struct {
	svc          *service.VoteService
	trustClaimed bool
}

// NewVoteHandler creates the vote endpoints. trustClaimed accepts a userId
// from the request when no verified identity is attached.
func NewVoteHandler(svc *service.VoteService, trustClaimed bool) *VoteHandler {
	return &VoteHandler{svc: svc, trustClaimed: trustClaimed}
}

// Cast handles POST /api/votes
func (h *VoteHandler) Cast(c fiber.Ctx) error {
	var req model.CastVoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), "Invalid request body")
	}
	if status, code, msg := h.prepare(c, &req); status != 0 {
		return middleware.ErrorResponse(c, status, code, msg)
	}

	resp, err := h.svc.Cast(c.Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Unvote handles DELETE /api/votes/:voteId
func (h *VoteHandler) Unvote(c fiber.Ctx) error {
	voteID, msg := middleware.ValidateVoteID(c.Params("voteId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}
	userID, status, code, msg := resolveUser(c, c.Query("userId"), h.trustClaimed)
	if status != 0 {
		return middleware.ErrorResponse(c, status, code, msg)
	}

	resp, err := h.svc.Unvote(c.Context(), model.UnvoteRequest{VoteID: voteID, UserID: userID})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}

// Batch handles POST /api/votes/batch. Every item is processed on its own;
// the response carries one result per item in request order.
func (h *VoteHandler) Batch(c fiber.Ctx) error {
	var req model.BatchVoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), "Invalid request body")
	}
	if len(req.Votes) == 0 {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), "votes must not be empty")
	}
	if len(req.Votes) > MaxBatchSize {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest),
			fmt.Sprintf("at most %d votes per batch", MaxBatchSize))
	}

	results := make([]model.BatchItemResult, len(req.Votes))
	pending := make([]model.CastVoteRequest, 0, len(req.Votes))
	index := make([]int, 0, len(req.Votes))
	for i := range req.Votes {
		item := req.Votes[i]
		if status, code, msg := h.prepare(c, &item); status != 0 {
			results[i] = model.BatchItemResult{Index: i, Error: &model.ErrorBody{Code: code, Message: msg}}
			continue
		}
		pending = append(pending, item)
		index = append(index, i)
	}

	for j, r := range h.svc.CastBatch(c.Context(), pending) {
		r.Index = index[j]
		results[index[j]] = r
	}
	return c.JSON(fiber.Map{"results": results})
}

// Limits handles GET /api/votes/limits?showId=
func (h *VoteHandler) Limits(c fiber.Ctx) error {
	showID, msg := middleware.ValidateID("showId", c.Query("showId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}
	userID, status, code, msg := resolveUser(c, c.Query("userId"), h.trustClaimed)
	if status != 0 {
		return middleware.ErrorResponse(c, status, code, msg)
	}

	limits, err := h.svc.Limits(c.Context(), userID, showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(limits)
}

// prepare resolves the acting user and validates identifiers in place.
func (h *VoteHandler) prepare(c fiber.Ctx, req *model.CastVoteRequest) (int, string, string) {
	userID, status, code, msg := resolveUser(c, req.UserID, h.trustClaimed)
	if status != 0 {
		return status, code, msg
	}
	req.UserID = userID

	fields := []struct {
		name string
		val  *string
	}{
		{"showId", &req.ShowID},
		{"songId", &req.SongID},
		{"setlistSongId", &req.SetlistSongID},
	}
	for _, f := range fields {
		id, msg := middleware.ValidateID(f.name, *f.val)
		if msg != "" {
			return fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg
		}
		*f.val = id
	}
	return 0, "", ""
}
