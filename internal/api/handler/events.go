package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/validate"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// Emitter enqueues one business event for every subscribed destination.
type Emitter interface {
	Emit(ctx context.Context, eventType string, data any) (int, error)
}

type EventsHandler struct {
	emitter Emitter
	logger  *slog.Logger
}

func NewEventsHandler(emitter Emitter, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		emitter: emitter,
		logger:  logger,
	}
}

type EmitEventRequest struct {
	EventType string          `json:"event_type" validate:"required,event_type"`
	Data      json.RawMessage `json:"data"`
}

type EmitEventResponse struct {
	EventType string `json:"event_type"`
	Enqueued  int    `json:"enqueued"`
}

// Emit lets services without database access publish events.
func (h *EventsHandler) Emit(c *fiber.Ctx) error {
	var req EmitEventRequest
	if err := validate.DecodeJSON(c.Body(), &req); err != nil {
		return err
	}

	data := bytes.TrimSpace(req.Data)
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage(`{}`)
	}
	if data[0] != '{' {
		return domain.ErrValidationFailed.WithDetails(map[string]string{
			"data": "must be a JSON object",
		})
	}

	n, err := h.emitter.Emit(c.UserContext(), req.EventType, json.RawMessage(data))
	if err != nil {
		return err
	}

	h.logger.Info("event emitted",
		slog.String("event_type", req.EventType),
		slog.Int("enqueued", n),
	)

	return c.Status(fiber.StatusAccepted).JSON(EmitEventResponse{
		EventType: req.EventType,
		Enqueued:  n,
	})
}
