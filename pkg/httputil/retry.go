// Package httputil provides an HTTP client that retries transient failures,
// used by the model collaborators.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Default retry configuration.
const (
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultHTTPTimeout = 2 * time.Minute
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// retryableStatusCodes are HTTP status codes worth retrying.
var retryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// StatusError is returned by PostJSON for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RetryOption configures a Client.
type RetryOption func(*Client)

// WithMaxRetries sets the maximum number of retry attempts (not counting the
// initial request). Zero means no retries.
func WithMaxRetries(n int) RetryOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the initial backoff delay before jitter.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *Client) { c.baseDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *Client) { c.maxDelay = d }
}

// WithHTTPTimeout sets the per-request timeout on the underlying http.Client.
func WithHTTPTimeout(d time.Duration) RetryOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client entirely.
// The caller is responsible for configuring timeouts on the provided client.
func WithHTTPClient(hc *http.Client) RetryOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger logs each retry at debug level.
func WithLogger(l *zap.Logger) RetryOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client wraps http.Client with retry-on-transient-failure behaviour.
type Client struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *zap.Logger
}

// NewClient creates a Client with sensible defaults.
func NewClient(opts ...RetryOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do executes an HTTP request with retries on transient failures.
//
// The request's context controls overall cancellation. Retries are attempted
// for connection errors and retryable HTTP status codes (429, 500, 502, 503,
// 504). Requests with a body are replayed through req.GetBody, which
// http.NewRequest sets for in-memory bodies; without it no retry is made.
// The response body of failed attempts is closed automatically.
//
// On success (or non-retryable failure), the caller owns the response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	retries := c.maxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.log.Debug("retrying request",
				zap.String("url", req.URL.Redacted()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Connection-level error (DNS, TCP reset, TLS, timeout): retry.
			lastErr = err
			continue
		}

		if !retryableStatusCodes[resp.StatusCode] {
			return resp, nil
		}

		lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
	}

	return nil, fmt.Errorf("%w (after %d retries)", lastErr, retries)
}

// PostJSON marshals in, POSTs it to url and decodes a 2xx JSON response into
// out. Other statuses return a *StatusError.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// backoff returns the delay for the given attempt (1-indexed) using
// exponential backoff with full jitter, capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	// Full jitter: uniform random in [0, delay].
	if delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay)))
	}
	return delay
}
