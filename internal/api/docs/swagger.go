package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string            `json:"code" example:"VALIDATION_FAILED"`
	Message string            `json:"message" example:"Request validation failed"`
	Details map[string]string `json:"details,omitempty"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

// DispatchResponse is returned by the dispatch entry point
type DispatchResponse struct {
	Message   string `json:"message" example:"Dispatch cycle completed"`
	Processed int    `json:"processed" example:"12"`
}

// DispatchErrorResponse is returned when a cycle cannot claim events
type DispatchErrorResponse struct {
	Error string `json:"error" example:"Failed to process webhook queue"`
}

// EmitEventRequest publishes one business event
type EmitEventRequest struct {
	EventType string         `json:"event_type" example:"client.created"`
	Data      map[string]any `json:"data"`
}

// EmitEventResponse reports how many queue rows were created
type EmitEventResponse struct {
	EventType string `json:"event_type" example:"client.created"`
	Enqueued  int    `json:"enqueued" example:"2"`
}

// TestDeliveryRequest describes a one-off delivery
type TestDeliveryRequest struct {
	URL           string            `json:"url" example:"https://hooks.example.com/clientpulse"`
	Secret        string            `json:"secret,omitempty" example:"whsec_test"`
	Payload       map[string]any    `json:"payload,omitempty"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty"`
	HTTPMethod    string            `json:"httpMethod,omitempty" example:"POST"`
}

// TestDeliveryResponse reports the destination's answer or the failure kind
type TestDeliveryResponse struct {
	Success      bool              `json:"success" example:"true"`
	Status       int               `json:"status,omitempty" example:"200"`
	StatusText   string            `json:"statusText,omitempty" example:"OK"`
	ResponseTime int64             `json:"responseTime" example:"184"`
	Body         string            `json:"body,omitempty" example:"{\"received\":true}"`
	Headers      map[string]string `json:"headers,omitempty"`
	Error        string            `json:"error,omitempty" example:"timeout"`
	Message      string            `json:"message,omitempty"`
}

// WebhookRequest creates or updates a destination
type WebhookRequest struct {
	Name          string            `json:"name" example:"CRM sync"`
	URL           string            `json:"url" example:"https://hooks.example.com/clientpulse"`
	Events        []string          `json:"events"`
	HTTPMethod    string            `json:"http_method,omitempty" example:"POST"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	Enabled       bool              `json:"enabled" example:"true"`
}

// Webhook is a destination as returned by the API. The secret is never
// included.
type Webhook struct {
	ID              string            `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name            string            `json:"name" example:"CRM sync"`
	URL             string            `json:"url" example:"https://hooks.example.com/clientpulse"`
	Events          []string          `json:"events"`
	HTTPMethod      string            `json:"http_method" example:"POST"`
	CustomHeaders   map[string]string `json:"custom_headers"`
	Enabled         bool              `json:"enabled" example:"true"`
	FailureCount    int               `json:"failure_count" example:"0"`
	LastTriggeredAt string            `json:"last_triggered_at,omitempty" example:"2026-01-01T00:00:00Z"`
	CreatedAt       string            `json:"created_at" example:"2026-01-01T00:00:00Z"`
	UpdatedAt       string            `json:"updated_at" example:"2026-01-01T00:00:00Z"`
}

// WebhookEnvelope wraps a single destination
type WebhookEnvelope struct {
	Webhook Webhook `json:"webhook"`
}

// CreateWebhookResponse carries the signing secret, shown only once
type CreateWebhookResponse struct {
	Webhook Webhook `json:"webhook"`
	Secret  string  `json:"secret" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// PageMeta describes a list page
type PageMeta struct {
	Limit  int `json:"limit" example:"50"`
	Offset int `json:"offset" example:"0"`
	Count  int `json:"count" example:"1"`
}

// WebhookList is a page of destinations
type WebhookList struct {
	Data []Webhook `json:"data"`
	Meta PageMeta  `json:"meta"`
}

// DeliveryLog is one recorded delivery attempt
type DeliveryLog struct {
	ID              string            `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	WebhookID       string            `json:"webhook_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventType       string            `json:"event_type" example:"client.created"`
	EventID         string            `json:"event_id" example:"evt_4f1c2d3e"`
	StatusCode      int               `json:"status_code" example:"500"`
	ResponseBody    string            `json:"response_body" example:"upstream unavailable"`
	ResponseHeaders map[string]string `json:"response_headers"`
	Attempt         int               `json:"attempt" example:"2"`
	ErrorMessage    string            `json:"error_message" example:"HTTP 500: Internal Server Error"`
	DurationMs      int64             `json:"duration_ms" example:"231"`
	Success         bool              `json:"success" example:"false"`
	CreatedAt       string            `json:"created_at" example:"2026-01-01T00:00:00Z"`
}

// DeliveryLogList is a page of delivery attempts
type DeliveryLogList struct {
	Data []DeliveryLog `json:"data"`
	Meta PageMeta      `json:"meta"`
}

// QueuedEvent is one queue row
type QueuedEvent struct {
	ID           string `json:"id" example:"2f1b6e4a-90a7-4a0e-8a53-0c5c7b2c1d10"`
	WebhookID    string `json:"webhook_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventType    string `json:"event_type" example:"client.created"`
	EventID      string `json:"event_id" example:"evt_4f1c2d3e"`
	Status       string `json:"status" example:"pending"`
	Attempts     int    `json:"attempts" example:"1"`
	MaxAttempts  int    `json:"max_attempts" example:"5"`
	ScheduledFor string `json:"scheduled_for" example:"2026-01-01T00:05:00Z"`
	LastError    string `json:"last_error,omitempty" example:"HTTP 503: Service Unavailable"`
	CreatedAt    string `json:"created_at" example:"2026-01-01T00:00:00Z"`
}

// QueuedEventList is a filtered view of a destination's queue
type QueuedEventList struct {
	Data []QueuedEvent `json:"data"`
}

// ResetResponse confirms a closed circuit
type ResetResponse struct {
	ID           string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	FailureCount int    `json:"failure_count" example:"0"`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing credentials"}, "401", "Unauthorized")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errNotFound     = response.New(ErrorResponse{Code: "WEBHOOK_NOT_FOUND", Message: "Webhook not found"}, "404", "Not Found")
	errBadID        = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid webhook ID"}, "400", "Bad Request")
	errValidation   = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")

	operatorAuth = endpoint.WithSecurity([]map[string][]string{{"OperatorKey": {}}})
	internalAuth = endpoint.WithSecurity([]map[string][]string{{"InternalSecret": {}}})
)

func idParam() *parameter.Parameter {
	return parameter.StrParam("id", parameter.Path, parameter.WithDescription("Webhook ID (UUID)"))
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "ClientPulse Webhooks API",
		Version:     "v1.0.0",
		Description: "Durable, signed, at-least-once delivery of ClientPulse business events to operator-configured HTTP destinations",
		Host:        "localhost:3000",
		Path:        "/",
	})

	endpoints := []*endpoint.EndPoint{
		// Internal endpoints

		// POST /internal/webhooks/dispatch - Run one dispatch cycle
		endpoint.New(
			endpoint.POST,
			"/internal/webhooks/dispatch",
			endpoint.WithTags("Internal"),
			endpoint.WithSummary("Run one dispatch cycle"),
			endpoint.WithDescription("Claims up to one batch of due queued events and delivers them concurrently. Requires the X-Internal-Secret header."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DispatchResponse{}, "200", "Cycle completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(DispatchErrorResponse{Error: "Unauthorized"}, "401", "Unauthorized"),
				response.New(DispatchErrorResponse{}, "500", "Internal Server Error"),
			}),
			internalAuth,
		),

		// POST /internal/events - Emit a business event
		endpoint.New(
			endpoint.POST,
			"/internal/events",
			endpoint.WithTags("Internal"),
			endpoint.WithSummary("Emit a business event"),
			endpoint.WithDescription("Snapshots the event data and enqueues one delivery per enabled destination subscribed to the event type."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(EmitEventRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmitEventResponse{}, "202", "Event enqueued"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request body"}, "400", "Bad Request"),
				response.New(DispatchErrorResponse{Error: "Unauthorized"}, "401", "Unauthorized"),
				errValidation,
				errInternal,
			}),
			internalAuth,
		),

		// Operator endpoints

		// POST /v1/webhooks/test - Test delivery
		endpoint.New(
			endpoint.POST,
			"/v1/webhooks/test",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Send a test delivery"),
			endpoint.WithDescription("Performs one signed delivery of a webhook.test event to the given https URL. Nothing is queued, retried or logged. Transport failures are reported with error set to timeout, dns_error, ssl_error or connection_error."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(TestDeliveryRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TestDeliveryResponse{}, "200", "Delivery attempted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "INSECURE_URL", Message: "Webhook URL must use https"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests"),
			}),
			operatorAuth,
		),

		// GET /v1/webhooks - List destinations
		endpoint.New(
			endpoint.GET,
			"/v1/webhooks",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List webhook destinations"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default: 50, max: 200)")),
				parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Offset (default: 0)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WebhookList{}, "200", "Destinations"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errInternal}),
			operatorAuth,
		),

		// POST /v1/webhooks - Create destination
		endpoint.New(
			endpoint.POST,
			"/v1/webhooks",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Create a webhook destination"),
			endpoint.WithDescription("Registers a destination. The signing secret is generated server-side and returned only in this response."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(WebhookRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CreateWebhookResponse{}, "201", "Destination created"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request body"}, "400", "Bad Request"),
				errUnauthorized,
				errValidation,
				errInternal,
			}),
			operatorAuth,
		),

		// GET /v1/webhooks/:id - Get destination
		endpoint.New(
			endpoint.GET,
			"/v1/webhooks/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Get a webhook destination"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WebhookEnvelope{}, "200", "Destination"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound}),
			operatorAuth,
		),

		// PUT /v1/webhooks/:id - Update destination
		endpoint.New(
			endpoint.PUT,
			"/v1/webhooks/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Update a webhook destination"),
			endpoint.WithDescription("Changes only the fields present in the body. The secret and failure counter are not editable."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam()),
			endpoint.WithBody(WebhookRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WebhookEnvelope{}, "200", "Destination updated"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound, errValidation}),
			operatorAuth,
		),

		// DELETE /v1/webhooks/:id - Delete destination
		endpoint.New(
			endpoint.DELETE,
			"/v1/webhooks/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Delete a webhook destination"),
			endpoint.WithDescription("Deletes the destination together with its queued events and delivery logs."),
			endpoint.WithParams(idParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Destination deleted"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound}),
			operatorAuth,
		),

		// POST /v1/webhooks/:id/reset - Reset circuit
		endpoint.New(
			endpoint.POST,
			"/v1/webhooks/{id}/reset",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Reset the failure counter"),
			endpoint.WithDescription("Sets the consecutive failure counter to zero so a circuit-broken destination receives events again."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ResetResponse{}, "200", "Counter reset"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound}),
			operatorAuth,
		),

		// GET /v1/webhooks/:id/deliveries - Delivery log
		endpoint.New(
			endpoint.GET,
			"/v1/webhooks/{id}/deliveries",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List delivery attempts"),
			endpoint.WithDescription("Returns recorded delivery attempts for the destination, newest first."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				idParam(),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default: 50, max: 500)")),
				parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Offset (default: 0)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DeliveryLogList{}, "200", "Delivery attempts"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound, errInternal}),
			operatorAuth,
		),

		// GET /v1/webhooks/:id/events - Queue entries
		endpoint.New(
			endpoint.GET,
			"/v1/webhooks/{id}/events",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List queued events"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				idParam(),
				parameter.StrParam("status", parameter.Query, parameter.WithDescription("Filter: pending, processing, completed or failed")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default: 50, max: 500)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(QueuedEventList{}, "200", "Queue entries"),
			}),
			endpoint.WithErrors([]response.Response{errBadID, errUnauthorized, errNotFound, errValidation}),
			operatorAuth,
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
