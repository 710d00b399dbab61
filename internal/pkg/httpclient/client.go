// Package httpclient provides a rate-limited JSON client for external HTTP APIs.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/stl/redstone-calldata/internal/pkg/retry"
)

// maxErrorBodyBytes bounds how much of an error response is kept in StatusError.
const maxErrorBodyBytes = 512

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout bounds a single HTTP request. Ignored when an *http.Client is supplied.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the client-side rate limiter.
	// A non-positive RequestsPerSecond disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Retry is applied to transport errors, HTTP 429 and HTTP 5xx responses.
	// The zero value sends each request once.
	Retry retry.Policy

	// UserAgent is sent with every request when set.
	UserAgent string
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// Client wraps an HTTP client with rate limiting and an optional retry policy.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     *slog.Logger
}

// NewClient creates a new HTTP client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
	}
}

// GetJSON performs a GET request and decodes the JSON response body into result.
func (c *Client) GetJSON(ctx context.Context, url string, result any) error {
	notify := func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			"url", url,
			"attempt", attempt,
			"maxRetries", c.config.Retry.MaxRetries,
			"backoff", wait,
			"error", err,
		)
	}

	return retry.Do(ctx, c.config.Retry, notify, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.getOnce(ctx, url, result)
	})
}

func (c *Client) getOnce(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return retry.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
