package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/setlistvote/setlistvote/internal/realtime"
)

type HealthHandler struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	hub     *realtime.Hub
	startAt time.Time
}

// NewHealthHandler creates the probes. pool and rdb may be nil when the
// service runs without Postgres or Redis.
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{
		pool:    pool,
		rdb:     rdb,
		hub:     hub,
		startAt: time.Now(),
	}
}

// Live handles GET /health/live, the liveness probe.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready, the readiness probe with dependency checks.
// Only the database gates readiness; a Redis outage degrades rate limiting
// but votes still flow.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	db := checkDB(ctx, h.pool)
	checks := fiber.Map{
		"database": db,
		"redis":    checkRedis(ctx, h.rdb),
	}
	if h.hub != nil {
		checks["realtime"] = fiber.Map{"status": "up", "channels": h.hub.Channels()}
	}

	overallStatus := "healthy"
	status := fiber.StatusOK
	if db["status"] == "down" {
		overallStatus = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":         overallStatus,
		"checks":         checks,
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
	})
}

func checkDB(ctx context.Context, pool *pgxpool.Pool) fiber.Map {
	if pool == nil {
		return fiber.Map{"status": "disabled"}
	}
	start := time.Now()
	err := pool.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}

func checkRedis(ctx context.Context, rdb *redis.Client) fiber.Map {
	if rdb == nil {
		return fiber.Map{"status": "disabled"}
	}
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}
