package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"merry/pkg/logger"

	"github.com/benbjohnson/clock"
)

// ErrTimedOut is returned when no response arrives within the request timeout.
// A timed-out request is never retried automatically; the caller cannot know
// whether the backend acted on it.
var ErrTimedOut = errors.New("request timed out")

// NetworkError wraps a transport-level failure (DNS, refused connection,
// broken pipe). These are retried up to the configured bound.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// TokenSource supplies the current access token. It is read at call time, not
// at schedule time, so a refresh that completes while a save is being queued
// always wins.
type TokenSource interface {
	Token() string
}

// Client sends JSON requests to the Merry backend with a fixed per-attempt
// timeout and bounded retry on transport failures. HTTP-level errors (4xx/5xx)
// are never retried here; interpreting status codes is the caller's job.
type Client struct {
	http       *http.Client
	baseURL    string
	tokens     TokenSource
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	clock      clock.Clock
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{},
		baseURL:    baseURL,
		tokens:     tokens,
		timeout:    30 * time.Second,
		maxRetries: 2,
		retryDelay: 1 * time.Second,
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestOptions struct {
	retries int
}

// RequestOption tunes a single request.
type RequestOption func(*requestOptions)

// WithoutRetry disables transport-level retry for this request. Used for
// refresh, logout, export and other calls where a transparent repeat would
// mask or duplicate the failure.
func WithoutRetry() RequestOption {
	return func(o *requestOptions) { o.retries = 0 }
}

// Do sends one JSON request and returns the buffered response. body may be nil
// for requests without a payload. Transport failures are retried with a fixed
// delay; timeouts and caller cancellation are not.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	ro := requestOptions{retries: c.maxRetries}
	for _, opt := range opts {
		opt(&ro)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= ro.retries; attempt++ {
		if attempt > 0 {
			logger.Sugar.Infof("Retrying %s %s (attempt %d/%d)", method, path, attempt, ro.retries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(c.retryDelay):
			}
		}

		resp, err := c.attempt(ctx, method, path, payload)
		if err == nil {
			return resp, nil
		}
		// The caller bailed or the deadline hit; repeating would be unsafe.
		if errors.Is(err, ErrTimedOut) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) classify(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return &NetworkError{Err: err}
}
