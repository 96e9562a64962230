package handler

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"

	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/realtime"
	"github.com/setlistvote/setlistvote/internal/service"
)

// DefaultHeartbeat is how often an idle stream sends a keep-alive comment.
const DefaultHeartbeat = 15 * time.Second

// StreamHandler serves live vote events as Server-Sent Events.
type StreamHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
	retry     time.Duration
}

// NewStreamHandler creates the stream endpoints. retry is advertised to
// clients as the reconnect delay.
func NewStreamHandler(hub *realtime.Hub, heartbeat, retry time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat, retry: retry}
}

// Show handles GET /api/shows/:showId/stream
func (h *StreamHandler) Show(c fiber.Ctx) error {
	showID, msg := middleware.ValidateID("showId", c.Params("showId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}
	return h.serve(c, realtime.ShowTopic(showID))
}

// Setlist handles GET /api/setlists/:setlistId/stream
func (h *StreamHandler) Setlist(c fiber.Ctx) error {
	setlistID, msg := middleware.ValidateID("setlistId", c.Params("setlistId"))
	if msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, string(service.CodeInvalidRequest), msg)
	}
	return h.serve(c, realtime.SetlistTopic(setlistID))
}

func (h *StreamHandler) serve(c fiber.Ctx, topic string) error {
	stream, err := h.hub.Open(c.Context(), topic)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, string(service.CodeTransient), "Live updates are unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Close()
		if err := Pump(context.Background(), stream, w, h.heartbeat, h.retry); err != nil {
			middleware.Logger.Debug().Err(err).Str("topic", topic).Msg("stream: closed")
		}
	})
	return nil
}

// Pump copies events from stream to w in SSE framing until the stream ends
// or a write fails. Idle periods longer than heartbeat produce a comment
// line so intermediaries keep the connection open.
func Pump(ctx context.Context, stream realtime.Stream, w *bufio.Writer, heartbeat, retry time.Duration) error {
	if retry > 0 {
		if _, err := w.WriteString("retry: " + strconv.FormatInt(retry.Milliseconds(), 10) + "\n\n"); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for {
		recvCtx, cancel := context.WithTimeout(ctx, heartbeat)
		ev, err := stream.Recv(recvCtx)
		cancel()

		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := WriteEvent(w, ev); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

// WriteEvent writes one event in SSE framing. VoteUpdates carry their
// version as the event id.
func WriteEvent(w *bufio.Writer, ev model.Event) error {
	var payload any = ev.Show
	if ev.Vote != nil {
		payload = ev.Vote
		if _, err := w.WriteString("id: " + strconv.FormatInt(ev.Vote.Version, 10) + "\n"); err != nil {
			return err
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("event: " + ev.Type + "\ndata: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.WriteString("\n\n")
	return err
}
