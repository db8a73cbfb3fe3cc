package browser

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// HTTPConfig holds configuration for the plain HTTP launcher
type HTTPConfig struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
}

// HTTPLauncher fetches server-rendered HTML without executing scripts.
// It is the fallback page source for hosts without Chrome and serves
// storefronts that render their catalog on the server.
type HTTPLauncher struct {
	client      *resty.Client
	rateLimiter *rate.Limiter
	maxAttempts int
}

// NewHTTPLauncher creates a rate limited launcher
func NewHTTPLauncher(config HTTPConfig) *HTTPLauncher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "ru-RU,ru;q=0.9")
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}

	return &HTTPLauncher{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		maxAttempts: config.MaxAttempts,
	}
}

// Open fetches url, retrying transient failures, and returns a static session over the body
func (l *HTTPLauncher) Open(ctx context.Context, url string) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		// Wait for rate limiter
		if err := l.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrPageLoad, err)
		}

		resp, err := l.client.R().SetContext(ctx).Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrPageLoad, url, ctx.Err())
			}
			log.Printf("[BROWSER] Request error (attempt %d): %v", attempt, err)
			lastErr = fmt.Errorf("%w: %s: %v", ErrPageLoad, url, err)
			l.backoff(ctx, attempt)
			continue
		}

		status := resp.StatusCode()
		if status == http.StatusOK {
			return NewDocumentSession(resp.String()), nil
		}

		lastErr = fmt.Errorf("%w: %s: status %d", ErrPageLoad, url, status)
		// Client errors other than throttling will not improve on retry
		if status < 500 && status != http.StatusTooManyRequests {
			return nil, lastErr
		}
		log.Printf("[BROWSER] Status %d for %s (attempt %d)", status, url, attempt)
		l.backoff(ctx, attempt)
	}

	return nil, lastErr
}

func (l *HTTPLauncher) backoff(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(attempt*500) * time.Millisecond):
	}
}
