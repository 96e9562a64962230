package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

const userIDLocal = "user_id"

// IdentityConfig controls how the caller's user id is resolved.
type IdentityConfig struct {
	// Secret verifies HS256 bearer tokens. Empty disables token checks.
	Secret string
	// AllowHeader accepts an X-User-ID header when no token is presented.
	AllowHeader bool
}

// NewIdentity resolves the caller's user id from a bearer token's "sub"
// claim or, when allowed, the X-User-ID header. Requests without an
// identity pass through; an invalid token is rejected with 401.
func NewIdentity(cfg IdentityConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if strings.HasPrefix(auth, "Bearer ") && cfg.Secret != "" {
			sub, ok := verifyToken(strings.TrimPrefix(auth, "Bearer "), cfg.Secret)
			if !ok {
				return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			}
			c.Locals(userIDLocal, sub)
			return c.Next()
		}

		if cfg.AllowHeader {
			if uid, errMsg := ValidateID("userId", c.Get("X-User-ID")); errMsg == "" {
				c.Locals(userIDLocal, uid)
			}
		}
		return c.Next()
	}
}

func verifyToken(raw, secret string) (string, bool) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return "", false
	}
	id, errMsg := ValidateID("sub", sub)
	return id, errMsg == ""
}

// UserID returns the identity attached by NewIdentity, or "".
func UserID(c fiber.Ctx) string {
	if v, ok := c.Locals(userIDLocal).(string); ok {
		return v
	}
	return ""
}
