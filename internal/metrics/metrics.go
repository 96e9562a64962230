// Package metrics holds the Prometheus collectors for the voting service.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	VotesCast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_votes_cast_total",
		Help: "Votes committed.",
	})

	VotesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "setlist_votes_rejected_total",
		Help: "Cast attempts rejected, by failure code.",
	}, []string{"code"})

	Unvotes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_unvotes_total",
		Help: "Votes retracted inside the grace window.",
	})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "setlist_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds, by endpoint and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status"})

	RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_cache_hits_total",
		Help: "Total LRU cache hits.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_cache_misses_total",
		Help: "Total LRU cache misses.",
	})

	CacheStaleFills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_cache_stale_fills_total",
		Help: "Cache fills refused because the key was invalidated during the store read.",
	})

	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_realtime_subscribers",
		Help: "Active real-time subscriptions across all channels.",
	})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "setlist_realtime_events_total",
		Help: "Real-time events fanned out, by event type.",
	}, []string{"type"})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "setlist_realtime_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full or stale.",
	})

	TrendRecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "setlist_trend_recompute_duration_seconds",
		Help:    "Duration of trending score recomputations.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	TrendShowsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "setlist_trend_shows_total",
		Help: "Shows scored by the trend scorer, by outcome.",
	}, []string{"outcome"})
)

// Register registers all collectors. Call once at startup.
func Register(pool *pgxpool.Pool) {
	prometheus.MustRegister(
		VotesCast,
		VotesRejected,
		Unvotes,
		RequestDuration,
		RequestsInFlight,
		CacheHits,
		CacheMisses,
		CacheStaleFills,
		Subscribers,
		EventsPublished,
		EventsDropped,
		TrendRecomputeDuration,
		TrendShowsProcessed,
	)

	// DB pool gauges read live stats from pgxpool
	if pool != nil {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "setlist_db_connection_pool_active",
				Help: "Number of active database connections.",
			}, func() float64 {
				return float64(pool.Stat().AcquiredConns())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "setlist_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			}, func() float64 {
				return float64(pool.Stat().IdleConns())
			}),
		)
	}
}

// Middleware records request duration and in-flight count.
func Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method before c.Next(); Fiber hands out slices of
		// the fasthttp buffer which may be reused by handlers.
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := SanitizeEndpoint(path)

		RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		status := strconv.Itoa(c.Response().StatusCode())
		RequestDuration.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())
		RequestsInFlight.Dec()

		return err
	}
}

// SanitizeEndpoint replaces id segments with placeholders to keep label
// cardinality bounded.
func SanitizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "shows":
			parts[i] = ":showId"
		case "setlists":
			parts[i] = ":setlistId"
		case "users":
			parts[i] = ":userId"
		case "votes":
			if parts[i] != "batch" && parts[i] != "limits" {
				parts[i] = ":voteId"
			}
		}
	}
	return strings.Join(parts, "/")
}

// Handler serves the Prometheus /metrics endpoint via Fiber.
func Handler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
