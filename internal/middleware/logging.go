package middleware

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/pkg/hash"
)

// Logger is the package-level zerolog logger used throughout the application.
var Logger = zerolog.Nop()

// InitLogger sets up the global zerolog logger with structured JSON output.
// Level is parsed from the given string (e.g. "debug", "info", "warn", "error").
func InitLogger(level, service string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// NewRequestLogger returns a Fiber middleware that logs each request as
// structured JSON. Client IPs are hashed and identifier segments replaced
// with placeholders.
func NewRequestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		evt := Logger.Info()
		if status >= 500 {
			evt = Logger.Error()
		} else if status >= 400 {
			evt = Logger.Warn()
		}

		evt.
			Str("method", c.Method()).
			Str("path", metrics.SanitizeEndpoint(c.Path())).
			Int("status", status).
			Dur("duration_ms", duration).
			Str("ip_hash", hash.Prefix(c.IP(), 12)).
			Int("bytes_sent", len(c.Response().Body())).
			Msg("request")

		return err
	}
}
