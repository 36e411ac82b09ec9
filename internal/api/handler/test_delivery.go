package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/validate"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

// DeliveryTester performs one unqueued delivery attempt.
type DeliveryTester interface {
	Test(ctx context.Context, req webhook.TestRequest) (*webhook.TestResult, error)
}

type TestDeliveryHandler struct {
	tester DeliveryTester
	logger *slog.Logger
}

func NewTestDeliveryHandler(tester DeliveryTester, logger *slog.Logger) *TestDeliveryHandler {
	return &TestDeliveryHandler{
		tester: tester,
		logger: logger,
	}
}

type TestDeliveryRequest struct {
	URL           string            `json:"url" validate:"required,url,max=2048"`
	Secret        string            `json:"secret" validate:"max=255"`
	Payload       json.RawMessage   `json:"payload"`
	CustomHeaders map[string]string `json:"customHeaders" validate:"max=20"`
	HTTPMethod    string            `json:"httpMethod"`
}

// Test sends a signed sample event to an arbitrary URL. Transport failures
// are part of a 200 response; only rejected input is an error.
func (h *TestDeliveryHandler) Test(c *fiber.Ctx) error {
	var req TestDeliveryRequest
	if err := validate.DecodeJSON(c.Body(), &req); err != nil {
		return err
	}

	result, err := h.tester.Test(c.UserContext(), webhook.TestRequest{
		URL:           req.URL,
		Secret:        req.Secret,
		Payload:       req.Payload,
		CustomHeaders: req.CustomHeaders,
		HTTPMethod:    req.HTTPMethod,
	})
	if err != nil {
		return err
	}

	h.logger.Info("test delivery sent",
		slog.Bool("success", result.Success),
		slog.Int("status_code", result.Status),
		slog.String("error_kind", string(result.Error)),
		slog.Int64("response_time_ms", result.ResponseTime),
	)

	return c.JSON(result)
}
