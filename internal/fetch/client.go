// Package fetch performs the outbound JSON GETs every source adapter relies on.
//
// Transport errors, 5xx and 429 responses are retried a bounded number of times with
// exponential backoff and full jitter. Any other non-success status fails immediately.
// The caller always gets an error back eventually; nothing loops indefinitely.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rewired-gh/strikewatch/internal/logger"
)

// ErrMissingField marks a successful response that lacks a field the caller requires.
var ErrMissingField = errors.New("response missing required field")

// maxBackoff caps a single retry sleep.
const maxBackoff = 60 * time.Second

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// StatusError is a non-success HTTP status from an upstream.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config controls timeouts and retries
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
	UserAgent      string
}

// Client issues JSON GET requests
type Client struct {
	httpClient *http.Client
	cfg        Config
	sleep      func(ctx context.Context, d time.Duration) error

	attempts metric.Int64Counter
	failures metric.Int64Counter
}

// NewClient creates a new fetch client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	meter := otel.Meter("strikewatch/fetch")
	attempts, _ := meter.Int64Counter("strikewatch_fetch_attempts_total")
	failures, _ := meter.Int64Counter("strikewatch_fetch_failures_total")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		sleep:      sleepContext,
		attempts:   attempts,
		failures:   failures,
	}
}

// GetJSON fetches rawURL with query appended and decodes the body into out
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	target, err := buildURL(rawURL, query)
	if err != nil {
		return err
	}
	host := hostOf(target)

	delay := c.cfg.RetryDelayBase
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host)))

		retry, err := c.do(ctx, target, header, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries-1 {
			break
		}

		if delay > maxBackoff {
			delay = maxBackoff
		}
		wait := jitter(delay)
		logger.Warn("GET %s failed (attempt %d/%d), retrying in %s: %v", host, attempt+1, c.cfg.MaxRetries, wait, err)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
		delay *= 2
	}

	c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host)))
	return lastErr
}

// do performs one attempt. The bool reports whether a failure may be retried.
func (c *Client) do(ctx context.Context, target string, header http.Header, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{URL: redact(target), StatusCode: resp.StatusCode, Body: string(body)}
		return statusErr.Retryable(), statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response from %s: %w", redact(target), err)
	}
	return false, nil
}

func buildURL(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}

// redact drops the query string, which may carry credentials.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = ""
	return u.String()
}

// jitter returns a random duration in [0, d].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
