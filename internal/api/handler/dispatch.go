package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

// CycleRunner runs one claim-and-deliver cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*webhook.CycleResult, error)
}

type DispatchHandler struct {
	runner CycleRunner
	logger *slog.Logger
}

func NewDispatchHandler(runner CycleRunner, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{
		runner: runner,
		logger: logger,
	}
}

type DispatchResponse struct {
	Message   string `json:"message"`
	Processed int    `json:"processed"`
}

type DispatchErrorResponse struct {
	Error string `json:"error"`
}

// Dispatch runs a single cycle. Per-event failures are already recorded in
// the queue and delivery log, so only a cycle-level failure is an error here.
func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	result, err := h.runner.RunCycle(c.UserContext())
	if err != nil {
		h.logger.Error("dispatch cycle failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(DispatchErrorResponse{
			Error: "Failed to process webhook queue",
		})
	}

	return c.JSON(DispatchResponse{
		Message:   "Dispatch cycle completed",
		Processed: result.Claimed,
	})
}
