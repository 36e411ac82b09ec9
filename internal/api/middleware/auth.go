package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// LocalOperator marks a request authenticated with the operator API key.
const LocalOperator = "operator"

// OperatorAuth guards the administration API with a static Bearer key.
func OperatorAuth(apiKey string) fiber.Handler {
	expected := hashAPIKey(apiKey)

	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" || apiKey == "" {
			return domain.ErrUnauthorized
		}

		// Hashing first keeps the comparison length-independent.
		got := hashAPIKey(token)
		if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalOperator, true)
		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func hashAPIKey(apiKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey))
}
