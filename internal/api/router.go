package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/handler"
	adminHandler "github.com/saturnino-fabrica-de-software/clientpulse/internal/api/handler/admin"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/metrics"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

type Dependencies struct {
	DB           handler.Pinger
	Webhooks     adminHandler.WebhookStore
	DeliveryLogs adminHandler.DeliveryLogReader
	Queue        adminHandler.QueueReader
	URLPolicy    adminHandler.URLValidator
	Dispatcher   handler.CycleRunner
	Producer     handler.Emitter
	Tester       handler.DeliveryTester
	Gatherer     prometheus.Gatherer

	// Optional background loops owned by the router.
	Worker     *webhook.Worker
	Aggregator *metrics.Aggregator

	InternalSecret        string
	OperatorAPIKey        string
	TestDeliveryRateLimit int
}

type Router struct {
	app              *fiber.App
	logger           *slog.Logger
	deps             *Dependencies
	rateLimiter      *middleware.RateLimiter
	cancelWorker     context.CancelFunc
	cancelAggregator context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "ClientPulse Webhooks",
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var db handler.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// Only configure the webhook surface if dependencies were provided
	if r.deps == nil {
		return
	}

	if r.deps.Gatherer != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.setupInternalRoutes(r.app.Group("/internal", middleware.InternalSecret(r.deps.InternalSecret)))
	r.setupV1Routes(r.app.Group("/v1"))

	r.startBackground()
}

// setupInternalRoutes registers service-to-service endpoints. The secret is
// checked before any handler touches the queue.
func (r *Router) setupInternalRoutes(internal fiber.Router) {
	dispatchHandler := handler.NewDispatchHandler(r.deps.Dispatcher, r.logger)
	internal.Post("/webhooks/dispatch", dispatchHandler.Dispatch)

	eventsHandler := handler.NewEventsHandler(r.deps.Producer, r.logger)
	internal.Post("/events", eventsHandler.Emit)
}

func (r *Router) setupV1Routes(v1 fiber.Router) {
	operator := middleware.OperatorAuth(r.deps.OperatorAPIKey)

	// Test deliveries reach arbitrary hosts, so they are limited per client IP
	limiterConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.TestDeliveryRateLimit > 0 {
		limiterConfig.Max = r.deps.TestDeliveryRateLimit
	}
	r.rateLimiter = middleware.NewRateLimiter(limiterConfig)

	testHandler := handler.NewTestDeliveryHandler(r.deps.Tester, r.logger)
	v1.Post("/webhooks/test", operator, r.rateLimiter.Handler(), testHandler.Test)

	webhooksHandler := adminHandler.NewWebhooksHandler(
		r.deps.Webhooks,
		r.deps.DeliveryLogs,
		r.deps.Queue,
		r.deps.URLPolicy,
		r.logger,
	)

	webhooks := v1.Group("/webhooks", operator)
	webhooks.Get("/", webhooksHandler.List)
	webhooks.Post("/", webhooksHandler.Create)
	webhooks.Get("/:id", webhooksHandler.Get)
	webhooks.Put("/:id", webhooksHandler.Update)
	webhooks.Delete("/:id", webhooksHandler.Delete)
	webhooks.Post("/:id/reset", webhooksHandler.ResetFailures)
	webhooks.Get("/:id/deliveries", webhooksHandler.Deliveries)
	webhooks.Get("/:id/events", webhooksHandler.Events)
}

func (r *Router) startBackground() {
	if r.deps.Worker != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancelWorker = cancel
		go r.deps.Worker.Run(ctx)
	}

	if r.deps.Aggregator != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancelAggregator = cancel
		go r.deps.Aggregator.Start(ctx)
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown stops background loops, then drains in-flight requests.
func (r *Router) Shutdown(timeout time.Duration) error {
	// Stop in-process dispatch worker
	if r.cancelWorker != nil {
		r.deps.Worker.Stop()
		r.cancelWorker()
	}

	// Stop queue depth aggregator
	if r.cancelAggregator != nil {
		r.deps.Aggregator.Stop()
		r.cancelAggregator()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	if timeout <= 0 {
		return r.app.Shutdown()
	}
	return r.app.ShutdownWithTimeout(timeout)
}
