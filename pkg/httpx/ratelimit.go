package httpx

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Enabled reports whether the config describes a usable limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// DefaultLoginLimit is a conservative profile for session creation. A
// FileMaker Server allows a limited number of concurrent Data API sessions,
// so clients that keep failing to hold a session should back off.
// Override with: FMREST_RATELIMIT_LOGIN_REQUESTS, FMREST_RATELIMIT_LOGIN_WINDOW_SEC, FMREST_RATELIMIT_LOGIN_BURST
var DefaultLoginLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             5,
}

func init() {
	DefaultLoginLimit = ParseRateLimitFromEnv("LOGIN", DefaultLoginLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: FMREST_RATELIMIT_{prefix}_{field}
// For example: FMREST_RATELIMIT_LOGIN_REQUESTS, FMREST_RATELIMIT_LOGIN_WINDOW_SEC
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	// Parse requests per window
	if val := os.Getenv("FMREST_RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	// Parse window duration in seconds
	if val := os.Getenv("FMREST_RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	// Parse burst size
	if val := os.Getenv("FMREST_RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// KeyedLimiter hands out one token bucket per key, e.g. per session scope.
type KeyedLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

// NewKeyedLimiter returns nil when config is not Enabled. A nil
// *KeyedLimiter never blocks.
func NewKeyedLimiter(config RateLimitConfig) *KeyedLimiter {
	if !config.Enabled() {
		return nil
	}

	burst := max(config.Burst, 1)
	return &KeyedLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

// Wait blocks until the bucket for key has a token or ctx is done.
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if kl == nil {
		return nil
	}
	return kl.getLimiter(key).Wait(ctx)
}

// getLimiter retrieves or creates a rate limiter for the given key
func (kl *KeyedLimiter) getLimiter(key string) *rate.Limiter {
	// Fast path: limiter already exists
	if limiter, ok := kl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	// Slow path: create new limiter
	limiter := rate.NewLimiter(kl.rate, kl.burst)
	actual, _ := kl.limiters.LoadOrStore(key, limiter)

	kl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose buckets are full, i.e. idle keys.
func (kl *KeyedLimiter) maybeCleanup() {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if time.Since(kl.lastCleanup) < 5*time.Minute {
		return
	}
	kl.lastCleanup = time.Now()

	kl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(kl.burst) {
			kl.limiters.Delete(key)
		}
		return true
	})
}
