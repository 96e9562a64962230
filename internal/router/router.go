package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/setlistvote/setlistvote/internal/handler"
	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/service"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Vote     *handler.VoteHandler
	Setlist  *handler.SetlistHandler
	User     *handler.UserHandler
	Trending *handler.TrendingHandler
	Show     *handler.ShowHandler
	Stream   *handler.StreamHandler
	Health   *handler.HealthHandler
}

// Options carries the cross-cutting settings of the middleware stack.
type Options struct {
	CORSOrigins string
	Identity    middleware.IdentityConfig
	AdminToken  string
	// ReadLimiter throttles read routes per resolved user, or per client IP
	// for anonymous requests. Vote writes are throttled inside the vote
	// service.
	ReadLimiter *service.RateLimiter
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, opts Options) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(metrics.Middleware())
	app.Use(middleware.NewRequestLogger())
	app.Use(middleware.NewCORS(opts.CORSOrigins))

	// Probes and metrics sit outside the API group: no identity, no limits.
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api", middleware.NewIdentity(opts.Identity))

	readLimit := func(c fiber.Ctx) error { return c.Next() }
	if opts.ReadLimiter != nil {
		readLimit = middleware.NewRateLimit(middleware.RateLimitConfig{
			Limiter:  opts.ReadLimiter,
			Resource: "read",
			KeyFn:    middleware.KeyByUserID,
		})
	}

	// Vote routes
	api.Post("/votes", h.Vote.Cast)
	api.Post("/votes/batch", h.Vote.Batch)
	api.Get("/votes/limits", readLimit, h.Vote.Limits)
	api.Delete("/votes/:voteId", h.Vote.Unvote)

	// Read routes
	api.Get("/setlists/:setlistId/votes", readLimit, h.Setlist.Votes)
	api.Get("/users/:userId/stats", readLimit, h.User.Stats)
	api.Get("/trending", readLimit, h.Trending.Top)
	api.Post("/shows/:showId/views", readLimit, h.Show.RecordView)

	// Live streams
	api.Get("/shows/:showId/stream", readLimit, h.Stream.Show)
	api.Get("/setlists/:setlistId/stream", readLimit, h.Stream.Setlist)

	// Admin
	api.Post("/admin/trending/recompute", middleware.NewAdminGuard(opts.AdminToken), h.Trending.Recompute)
}
