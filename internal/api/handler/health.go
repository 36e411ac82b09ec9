package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/database"
)

// Pinger reports database reachability.
type Pinger = database.Pinger

type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger,
	}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
			h.logger.Warn("readiness check failed", slog.Any("error", err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
			})
		}
	}

	return c.JSON(HealthResponse{
		Status: "ready",
	})
}
