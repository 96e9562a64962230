package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// MaxIDLen bounds every opaque identifier accepted from clients.
const MaxIDLen = 64

// idRe matches opaque identifiers: alphanumeric, dash, underscore.
var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateID checks that an identifier is well-formed. It returns the
// trimmed id, or an error message naming field.
func ValidateID(field, id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", field + " is required"
	}
	if len(id) > MaxIDLen {
		return "", fmt.Sprintf("%s must be at most %d characters", field, MaxIDLen)
	}
	if !idRe.MatchString(id) {
		return "", field + " contains invalid characters"
	}
	return id, ""
}

// ValidateVoteID checks that a vote id is a UUID and returns its canonical form.
func ValidateVoteID(id string) (string, string) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", "voteId must be a UUID"
	}
	return parsed.String(), ""
}

// ParseLimit reads an optional positive integer query value, falling back
// to def when absent.
func ParseLimit(raw string, def, max int) (int, string) {
	if raw == "" {
		return def, ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, "limit must be a positive integer"
	}
	if n > max {
		n = max
	}
	return n, ""
}
