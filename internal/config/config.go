package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Security
	InternalDispatchSecret string `envconfig:"INTERNAL_DISPATCH_SECRET" required:"true"`
	OperatorAPIKey         string `envconfig:"OPERATOR_API_KEY" required:"true"`

	// Dispatcher
	DispatchBatchSize      int           `envconfig:"DISPATCH_BATCH_SIZE" default:"50"`
	DispatchMaxConcurrency int           `envconfig:"DISPATCH_MAX_CONCURRENCY" default:"0"`
	DeliveryTimeout        time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
	FailureCeiling         int           `envconfig:"FAILURE_CEILING" default:"10"`
	DefaultMaxAttempts     int           `envconfig:"DEFAULT_MAX_ATTEMPTS" default:"5"`
	ProcessingLease        time.Duration `envconfig:"PROCESSING_LEASE" default:"5m"`
	UserAgent              string        `envconfig:"USER_AGENT" default:"ClientPulse-Webhooks/1.0"`

	// Destinations
	AllowPrivateDestinations bool `envconfig:"ALLOW_PRIVATE_DESTINATIONS" default:"false"`
	TestDeliveryRateLimit    int  `envconfig:"TEST_DELIVERY_RATE_LIMIT" default:"20"`

	// Metrics
	MetricsInterval time.Duration `envconfig:"METRICS_INTERVAL" default:"1m"`

	// In-process worker
	WorkerEnabled  bool          `envconfig:"WORKER_ENABLED" default:"false"`
	WorkerInterval time.Duration `envconfig:"WORKER_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DispatchBatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.DispatchBatchSize)
	}
	if c.DispatchMaxConcurrency < 0 {
		return fmt.Errorf("DISPATCH_MAX_CONCURRENCY must not be negative, got %d", c.DispatchMaxConcurrency)
	}
	if c.FailureCeiling <= 0 {
		return fmt.Errorf("FAILURE_CEILING must be positive, got %d", c.FailureCeiling)
	}
	if c.DefaultMaxAttempts <= 0 {
		return fmt.Errorf("DEFAULT_MAX_ATTEMPTS must be positive, got %d", c.DefaultMaxAttempts)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive")
	}
	if c.ProcessingLease < 0 {
		return fmt.Errorf("PROCESSING_LEASE must not be negative")
	}
	if c.ProcessingLease > 0 {
		if floor := c.MinProcessingLease(); c.ProcessingLease <= floor {
			return fmt.Errorf("PROCESSING_LEASE %s must exceed %s for %d events at concurrency %d with DELIVERY_TIMEOUT %s",
				c.ProcessingLease, floor, c.DispatchBatchSize, c.MaxConcurrency(), c.DeliveryTimeout)
		}
	}
	return nil
}

// MinProcessingLease is the longest a full cycle can hold a claim: every
// delivery wave running to the timeout, plus one more timeout of margin.
// A shorter lease lets another cycle re-claim rows this one still owns.
func (c *Config) MinProcessingLease() time.Duration {
	conc := c.MaxConcurrency()
	waves := (c.DispatchBatchSize + conc - 1) / conc
	return time.Duration(waves+1) * c.DeliveryTimeout
}

// MaxConcurrency returns the in-flight delivery limit for one cycle.
// Zero means "as many as were claimed".
func (c *Config) MaxConcurrency() int {
	if c.DispatchMaxConcurrency == 0 {
		return c.DispatchBatchSize
	}
	return c.DispatchMaxConcurrency
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SchedulerConfig drives cmd/scheduler, which only needs to reach the
// dispatch endpoint.
type SchedulerConfig struct {
	Environment            string        `envconfig:"ENV" default:"development"`
	DispatchURL            string        `envconfig:"DISPATCH_URL" default:"http://localhost:3000/internal/webhooks/dispatch"`
	InternalDispatchSecret string        `envconfig:"INTERNAL_DISPATCH_SECRET" required:"true"`
	Interval               time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"60s"`
	RequestTimeout         time.Duration `envconfig:"SCHEDULER_REQUEST_TIMEOUT" default:"5m"`
}

func LoadScheduler() (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}
	return &cfg, nil
}
