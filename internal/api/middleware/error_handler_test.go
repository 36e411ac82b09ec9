package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails map[string]string
	}{
		{
			name:       "app error",
			err:        domain.ErrWebhookNotFound,
			wantStatus: 404,
			wantCode:   "WEBHOOK_NOT_FOUND",
		},
		{
			name:        "app error with details",
			err:         domain.ErrValidationFailed.WithDetails(map[string]string{"url": "is required"}),
			wantStatus:  422,
			wantCode:    "VALIDATION_FAILED",
			wantDetails: map[string]string{"url": "is required"},
		},
		{
			name:       "fiber error",
			err:        fiber.ErrMethodNotAllowed,
			wantStatus: 405,
			wantCode:   "HTTP_ERROR",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: 500,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{
				ErrorHandler: ErrorHandler(slog.New(slog.DiscardHandler)),
			})
			app.Get("/test", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantDetails, body.Error.Details)
		})
	}
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover(slog.New(slog.DiscardHandler)))
	app.Get("/panic", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}
