package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator returns the bucket key; an empty key is not limited
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig limits by client IP
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    20,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// windowState tracks the fixed window of one key
type windowState struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements a fixed-window limiter per key
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*windowState
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.Max <= 0 {
		config.Max = defaults.Max
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = defaults.KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*windowState),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		now := rl.now()

		rl.mu.Lock()
		state, exists := rl.limiters[key]
		if !exists || now.After(state.windowEnd) {
			state = &windowState{windowEnd: now.Add(rl.config.Window)}
			rl.limiters[key] = state
		}
		state.count++
		state.lastAccess = now
		count := state.count
		windowEnd := state.windowEnd
		rl.mu.Unlock()

		remaining := max(rl.config.Max-count, 0)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			retryAfter := max(int(windowEnd.Sub(now).Seconds()), 1)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, state := range rl.limiters {
				// Remove entries that haven't been accessed in 2 windows
				if now.Sub(state.lastAccess) > 2*rl.config.Window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
