package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/setlistvote/setlistvote/internal/config"
	"github.com/setlistvote/setlistvote/internal/db"
	"github.com/setlistvote/setlistvote/internal/events"
	"github.com/setlistvote/setlistvote/internal/handler"
	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/internal/middleware"
	"github.com/setlistvote/setlistvote/internal/realtime"
	"github.com/setlistvote/setlistvote/internal/repository"
	"github.com/setlistvote/setlistvote/internal/router"
	"github.com/setlistvote/setlistvote/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	middleware.InitLogger(cfg.LogLevel, "setlistvote")
	log := middleware.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Stores
	var (
		pool      *pgxpool.Pool
		voteStore service.VoteStore
		stats     realtime.StatsSource
		showStore service.ShowStore
		notifier  service.ChangeNotifier
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err = db.NewPool(ctx, cfg.Store.DatabaseURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if cfg.Store.Migrate {
			if err := db.Migrate(ctx, pool, log); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}
		voteRepo := repository.NewVoteRepo(pool)
		voteStore, stats, notifier = voteRepo, voteRepo, voteRepo
		showStore = repository.NewShowRepo(pool)
	default:
		mem := repository.NewMemoryStore()
		if cfg.Store.Seed {
			seedDemo(mem, clock.Now())
		}
		voteStore, stats, showStore = mem, mem, mem
		log.Warn().Msg("using in-memory store; votes are lost on restart and not shared between instances")
	}
	metrics.Register(pool)

	// Rate-limit counters: Redis when reachable, process memory otherwise.
	var (
		rdb      *redis.Client
		counters service.CounterStore
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, using in-memory rate-limit counters")
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	if rdb != nil {
		counters = repository.NewRedisCounterStore(rdb, cfg.Redis.Prefix)
	} else {
		mc := repository.NewMemoryCounterStore(clock)
		go mc.Run(ctx, time.Minute)
		counters = mc
	}

	// Real-time fan-out
	hub := realtime.NewHub(clock, cfg.Realtime.IdleTimeout, cfg.Realtime.BufferSize)
	go hub.Run(ctx, cfg.Realtime.SweepInterval)
	broadcaster := realtime.NewBroadcaster(hub, stats, clock, middleware.Component("broadcaster"))

	var sink service.EventSink
	if cfg.AMQP.URL != "" {
		pub := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.Buffer, middleware.Component("amqp"))
		go pub.Run(ctx)
		sink = pub
	}

	// Services
	cache := service.NewCacheService(cfg.Cache.Size, cfg.Cache.TTL, middleware.Component("cache"))
	voteSvc := service.NewVoteService(service.VoteDeps{
		Store:      voteStore,
		Limiter:    service.NewRateLimiter(counters, cfg.RateLimit.VoteLimit, cfg.RateLimit.VoteWindow),
		Cache:      cache,
		Notifier:   notifier,
		Announcer:  broadcaster,
		Events:     sink,
		Clock:      clock,
		Grace:      cfg.Votes.GraceWindow,
		DailyLimit: cfg.Votes.DailyLimit,
		ShowLimit:  cfg.Votes.ShowLimit,
		TxTimeout:  cfg.Votes.TxTimeout,
		Logger:     middleware.Component("votes"),
	})
	setlistSvc := service.NewSetlistService(voteStore, cache, clock, middleware.Component("setlists"))
	showSvc := service.NewShowService(showStore, clock)
	scorer := service.NewTrendScorer(showStore, clock, middleware.Component("trend"))

	// Background workers
	if pool != nil {
		backoff := realtime.BackoffPolicy{
			Base:        cfg.Realtime.BackoffBase,
			MaxAttempts: cfg.Realtime.MaxAttempts,
			MaxDelay:    30 * time.Second,
		}
		listener := realtime.NewPGListener(pool, repository.VoteChangesChannel, voteSvc, backoff, middleware.Component("pg-listener"))
		go listener.Start(ctx)
	}
	trendWorker := service.NewTrendWorker(scorer, cfg.Trending.Interval, middleware.Component("trend-worker"))
	trendWorker.Start(ctx)

	// HTTP
	app := fiber.New(fiber.Config{
		AppName:      "SetlistVote API",
		ServerHeader: "SetlistVote",
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	trustClaimed := cfg.Auth.JWTSecret == ""
	router.Setup(app, &router.Handlers{
		Vote:     handler.NewVoteHandler(voteSvc, trustClaimed),
		Setlist:  handler.NewSetlistHandler(setlistSvc),
		User:     handler.NewUserHandler(setlistSvc),
		Trending: handler.NewTrendingHandler(scorer),
		Show:     handler.NewShowHandler(showSvc),
		Stream:   handler.NewStreamHandler(hub, handler.DefaultHeartbeat, cfg.Realtime.BackoffBase),
		Health:   handler.NewHealthHandler(pool, rdb, hub),
	}, router.Options{
		CORSOrigins: cfg.CORSOrigins,
		Identity:    middleware.IdentityConfig{Secret: cfg.Auth.JWTSecret, AllowHeader: trustClaimed},
		AdminToken:  cfg.Auth.AdminToken,
		ReadLimiter: service.NewRateLimiter(counters, cfg.RateLimit.ReadLimit, cfg.RateLimit.ReadWindow),
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Str("store", cfg.Store.Driver).Msg("setlistvote starting")
		if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	trendWorker.Stop()
	// Ending live streams first lets the HTTP server drain.
	hub.Close()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("stopped")
}
