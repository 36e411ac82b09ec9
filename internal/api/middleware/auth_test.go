package middleware

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthApp(apiKey string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(slog.New(slog.DiscardHandler)),
	})
	app.Use(OperatorAuth(apiKey))
	app.Get("/test", func(c *fiber.Ctx) error {
		operator, _ := c.Locals(LocalOperator).(bool)
		return c.JSON(fiber.Map{"operator": operator})
	})
	return app
}

func TestOperatorAuth(t *testing.T) {
	const apiKey = "cp_operator_key"

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + apiKey, fiber.StatusOK},
		{"case insensitive scheme", "bearer " + apiKey, fiber.StatusOK},
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + apiKey, fiber.StatusUnauthorized},
		{"wrong key", "Bearer cp_other_key", fiber.StatusUnauthorized},
		{"prefix of key", "Bearer cp_operator", fiber.StatusUnauthorized},
		{"empty token", "Bearer ", fiber.StatusUnauthorized},
	}

	app := newAuthApp(apiKey)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestOperatorAuth_EmptyConfiguredKeyRejectsEverything(t *testing.T) {
	app := newAuthApp("")

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHashAPIKey(t *testing.T) {
	a := hashAPIKey("key")
	b := hashAPIKey("key")
	c := hashAPIKey("other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
