package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/validate"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

const secretBytes = 32

// WebhookStore is the subset of the destination registry the operator API
// manages.
type WebhookStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	List(ctx context.Context, limit, offset int) ([]domain.Webhook, error)
	Create(ctx context.Context, w *domain.Webhook) error
	Update(ctx context.Context, w *domain.Webhook) error
	Delete(ctx context.Context, id uuid.UUID) error
	ResetFailures(ctx context.Context, id uuid.UUID) error
}

type DeliveryLogReader interface {
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]domain.DeliveryLog, error)
}

type QueueReader interface {
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, status domain.EventStatus, limit int) ([]domain.QueuedEvent, error)
}

// URLValidator enforces the destination URL policy.
type URLValidator interface {
	Validate(ctx context.Context, raw string) error
}

type WebhooksHandler struct {
	webhooks WebhookStore
	logs     DeliveryLogReader
	queue    QueueReader
	urls     URLValidator
	logger   *slog.Logger
}

func NewWebhooksHandler(
	webhooks WebhookStore,
	logs DeliveryLogReader,
	queue QueueReader,
	urls URLValidator,
	logger *slog.Logger,
) *WebhooksHandler {
	return &WebhooksHandler{
		webhooks: webhooks,
		logs:     logs,
		queue:    queue,
		urls:     urls,
		logger:   logger,
	}
}

type CreateWebhookRequest struct {
	Name          string            `json:"name" validate:"required,min=3,max=255"`
	URL           string            `json:"url" validate:"required,url,max=2048"`
	Events        []string          `json:"events" validate:"required,min=1,unique,dive,event_type"`
	HTTPMethod    string            `json:"http_method"`
	CustomHeaders map[string]string `json:"custom_headers" validate:"max=20,dive,keys,min=1,max=128,endkeys,max=1024"`
	Enabled       *bool             `json:"enabled"`
}

// UpdateWebhookRequest changes only the fields that are present.
type UpdateWebhookRequest struct {
	Name          *string           `json:"name" validate:"omitempty,min=3,max=255"`
	URL           *string           `json:"url" validate:"omitempty,url,max=2048"`
	Events        []string          `json:"events" validate:"omitempty,min=1,unique,dive,event_type"`
	HTTPMethod    *string           `json:"http_method"`
	CustomHeaders map[string]string `json:"custom_headers" validate:"omitempty,max=20,dive,keys,min=1,max=128,endkeys,max=1024"`
	Enabled       *bool             `json:"enabled"`
}

func (h *WebhooksHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	webhooks, err := h.webhooks.List(c.UserContext(), limit, offset)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}

	return c.JSON(fiber.Map{
		"data": webhooks,
		"meta": fiber.Map{
			"limit":  limit,
			"offset": offset,
			"count":  len(webhooks),
		},
	})
}

func (h *WebhooksHandler) Get(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}

	w, err := h.webhooks.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"webhook": w})
}

// Create registers a destination. The signing secret is generated here and
// returned only in this response.
func (h *WebhooksHandler) Create(c *fiber.Ctx) error {
	var req CreateWebhookRequest
	if err := validate.DecodeJSON(c.Body(), &req); err != nil {
		return err
	}

	method, err := webhook.NormalizeMethod(req.HTTPMethod)
	if err != nil {
		return err
	}
	if err := h.urls.Validate(c.UserContext(), req.URL); err != nil {
		return err
	}

	secret, err := generateSecret(secretBytes)
	if err != nil {
		return domain.ErrInternal.WithError(fmt.Errorf("generate webhook secret: %w", err))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	w := &domain.Webhook{
		Name:          req.Name,
		URL:           req.URL,
		Secret:        secret,
		Events:        req.Events,
		HTTPMethod:    method,
		CustomHeaders: req.CustomHeaders,
		Enabled:       enabled,
	}

	if err := h.webhooks.Create(c.UserContext(), w); err != nil {
		return domain.ErrInternal.WithError(err)
	}

	h.logger.Info("webhook created",
		"webhook_id", w.ID,
		"name", w.Name,
		"events", w.Events,
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"webhook": w,
		"secret":  secret,
	})
}

func (h *WebhooksHandler) Update(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}

	var req UpdateWebhookRequest
	if err := validate.DecodeJSON(c.Body(), &req); err != nil {
		return err
	}

	w, err := h.webhooks.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		w.Name = *req.Name
	}
	if req.URL != nil {
		if err := h.urls.Validate(c.UserContext(), *req.URL); err != nil {
			return err
		}
		w.URL = *req.URL
	}
	if req.Events != nil {
		w.Events = req.Events
	}
	if req.HTTPMethod != nil {
		method, err := webhook.NormalizeMethod(*req.HTTPMethod)
		if err != nil {
			return err
		}
		w.HTTPMethod = method
	}
	if req.CustomHeaders != nil {
		w.CustomHeaders = req.CustomHeaders
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}

	if err := h.webhooks.Update(c.UserContext(), w); err != nil {
		return err
	}

	h.logger.Info("webhook updated", "webhook_id", w.ID)

	return c.JSON(fiber.Map{"webhook": w})
}

func (h *WebhooksHandler) Delete(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}

	if err := h.webhooks.Delete(c.UserContext(), id); err != nil {
		return err
	}

	h.logger.Info("webhook deleted", "webhook_id", id)

	return c.Status(fiber.StatusNoContent).Send(nil)
}

// ResetFailures closes the circuit so the destination receives events again.
func (h *WebhooksHandler) ResetFailures(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}

	if err := h.webhooks.ResetFailures(c.UserContext(), id); err != nil {
		return err
	}

	h.logger.Info("webhook failure counter reset", "webhook_id", id)

	return c.JSON(fiber.Map{
		"id":            id,
		"failure_count": 0,
	})
}

func (h *WebhooksHandler) Deliveries(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}
	if _, err := h.webhooks.GetByID(c.UserContext(), id); err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	logs, err := h.logs.ListByWebhook(c.UserContext(), id, limit, offset)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}

	return c.JSON(fiber.Map{
		"data": logs,
		"meta": fiber.Map{
			"limit":  limit,
			"offset": offset,
			"count":  len(logs),
		},
	})
}

func (h *WebhooksHandler) Events(c *fiber.Ctx) error {
	id, err := webhookID(c)
	if err != nil {
		return err
	}

	status := domain.EventStatus(c.Query("status"))
	switch status {
	case "", domain.EventPending, domain.EventProcessing, domain.EventCompleted, domain.EventFailed:
	default:
		return domain.ErrValidationFailed.WithDetails(map[string]string{
			"status": "must be one of: pending processing completed failed",
		})
	}

	if _, err := h.webhooks.GetByID(c.UserContext(), id); err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	events, err := h.queue.ListByWebhook(c.UserContext(), id, status, limit)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}

	return c.JSON(fiber.Map{
		"data": events,
		"meta": fiber.Map{
			"limit":  limit,
			"status": status,
			"count":  len(events),
		},
	})
}

func webhookID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrBadRequest.WithMessage("Invalid webhook ID")
	}
	return id, nil
}

func generateSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
