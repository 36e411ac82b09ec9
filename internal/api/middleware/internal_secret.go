package middleware

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// InternalSecretHeader carries the shared secret for internal endpoints.
const InternalSecretHeader = "X-Internal-Secret"

// InternalSecret rejects requests without the shared internal secret before
// any handler runs. The body shape matches the dispatch endpoint contract.
func InternalSecret(secret string) fiber.Handler {
	expected := sha256.Sum256([]byte(secret))

	return func(c *fiber.Ctx) error {
		provided := c.Get(InternalSecretHeader)
		got := sha256.Sum256([]byte(provided))

		if secret == "" || provided == "" || subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		return c.Next()
	}
}
