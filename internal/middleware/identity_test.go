package middleware

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func identityApp(cfg IdentityConfig) *fiber.App {
	app := fiber.New()
	app.Use(NewIdentity(cfg))
	app.Get("/", func(c fiber.Ctx) error { return c.SendString(UserID(c)) })
	return app
}

func TestIdentity(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	valid := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "fan-1", "exp": exp})
	expired := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "fan-1", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "fan-1", "exp": exp})
	badSub := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "fan 1", "exp": exp})

	tests := []struct {
		name       string
		cfg        IdentityConfig
		header     string
		value      string
		wantStatus int
		wantUser   string
	}{
		{"valid token", IdentityConfig{Secret: testSecret}, "Authorization", "Bearer " + valid, fiber.StatusOK, "fan-1"},
		{"expired token", IdentityConfig{Secret: testSecret}, "Authorization", "Bearer " + expired, fiber.StatusUnauthorized, ""},
		{"wrong key", IdentityConfig{Secret: testSecret}, "Authorization", "Bearer " + wrongKey, fiber.StatusUnauthorized, ""},
		{"malformed subject", IdentityConfig{Secret: testSecret}, "Authorization", "Bearer " + badSub, fiber.StatusUnauthorized, ""},
		{"header allowed", IdentityConfig{AllowHeader: true}, "X-User-ID", "fan-2", fiber.StatusOK, "fan-2"},
		{"header ignored", IdentityConfig{Secret: testSecret}, "X-User-ID", "fan-2", fiber.StatusOK, ""},
		{"invalid header", IdentityConfig{AllowHeader: true}, "X-User-ID", "fan 2!", fiber.StatusOK, ""},
		{"anonymous", IdentityConfig{Secret: testSecret}, "", "", fiber.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, identityApp(tt.cfg), tt.header, tt.value)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == fiber.StatusOK {
				assert.Equal(t, tt.wantUser, readBody(t, resp))
			}
		})
	}
}
