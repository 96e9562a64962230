package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://a.example, https://b.example,", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitOrigins(tt.in), "in=%q", tt.in)
	}
}

func corsApp(origins string) *fiber.App {
	app := fiber.New()
	app.Use(NewCORS(origins))
	app.Get("/api/trending", func(c fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestCORSPreflightAllowsStreamAndIdentityHeaders(t *testing.T) {
	app := corsApp("https://fans.example")

	req := httptest.NewRequest(http.MethodOptions, "/api/trending", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://fans.example")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodGet)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://fans.example", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	allowed := resp.Header.Get(fiber.HeaderAccessControlAllowHeaders)
	assert.Contains(t, allowed, "Last-Event-ID")
	assert.Contains(t, allowed, "X-User-ID")
	assert.Contains(t, allowed, fiber.HeaderAuthorization)
}

func TestCORSExposesRateLimitHeaders(t *testing.T) {
	app := corsApp("")

	req := httptest.NewRequest(http.MethodGet, "/api/trending", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://anywhere.example")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	exposed := resp.Header.Get(fiber.HeaderAccessControlExposeHeaders)
	assert.Contains(t, exposed, "X-RateLimit-Remaining")
	assert.Contains(t, exposed, fiber.HeaderRetryAfter)
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	app := corsApp("https://fans.example")

	req := httptest.NewRequest(http.MethodGet, "/api/trending", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://other.example")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}
