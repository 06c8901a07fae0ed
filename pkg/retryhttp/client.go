// Package retryhttp issues JSON POST requests against generative APIs,
// retrying transport failures and 5xx responses with exponential backoff.
package retryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	unknownAPIError = "Unknown API error"
)

// TransportError is returned when every attempt failed before a response
// was received.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError carries a non-200 upstream status and its error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      contextSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends body to endpoint. timeout bounds each attempt, not the whole call.
// Transport failures and 5xx responses share one retry budget; any other
// non-200 status is returned immediately as *APIError.
func (c *Client) Post(ctx context.Context, endpoint string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.logger.Warn("Retrying request",
				zap.String("host", hostOf(endpoint)),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.do(ctx, endpoint, headers, body, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return nil, apiErr
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		return nil, apiErr
	}
	return nil, &TransportError{Attempts: c.maxRetries + 1, Err: lastErr}
}

// backoff returns 2^n * baseDelay.
func (c *Client) backoff(n int) time.Duration {
	return c.baseDelay << n
}

func (c *Client) do(ctx context.Context, endpoint string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, redactURL(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// errorMessage reads {"error":{"message":...}}.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return unknownAPIError
	}
	return payload.Error.Message
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// redactURL drops the query string, which may carry an API key, from
// transport errors before they reach logs.
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil && u.RawQuery != "" {
		u.RawQuery = ""
		urlErr.URL = u.String()
	}
	return err
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
