package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults for the retry and timeout policy.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	maxRetryAfter    = 30 * time.Second
	maxResponseBytes = 10 << 20
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	log        *slog.Logger
	onFailure  func(error)
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithMaxRetries sets how many times a temporary failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) { c.maxRetries = n }
}

// WithRetryDelay sets the base delay between attempts. Attempt n waits n*delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.retryDelay = d }
}

// WithHTTPClient overrides the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithClientLogger sets the logger used for retry diagnostics.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.log = log }
}

// withFailureHook is installed by Manager so that failed calls count against
// the cached entry's health.
func withFailureHook(fn func(error)) ClientOption {
	return func(c *clientConfig) { c.onFailure = fn }
}

// Client calls the Respond.io API with one bearer credential.
type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
	onFailure  func(error)
}

// NewClient builds a Client for endpoint using credential. A "Bearer " prefix
// on the credential is stripped.
func NewClient(endpoint, credential string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, ErrNoEndpoint
	}
	token := NormalizeCredential(credential)
	if token == "" {
		return nil, ErrNoCredential
	}
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", endpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("base URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}

	cfg := clientConfig{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.maxRetries < 0 {
		cfg.maxRetries = 0
	}

	return &Client{
		baseURL:    u,
		token:      token,
		http:       hc,
		maxRetries: cfg.maxRetries,
		retryDelay: cfg.retryDelay,
		log:        cfg.log,
		onFailure:  cfg.onFailure,
	}, nil
}

// NormalizeCredential trims whitespace and a leading "Bearer" scheme. A bare
// scheme normalizes to the empty string.
func NormalizeCredential(credential string) string {
	credential = strings.TrimSpace(credential)
	const scheme = "bearer"
	if len(credential) < len(scheme) || !strings.EqualFold(credential[:len(scheme)], scheme) {
		return credential
	}
	rest := credential[len(scheme):]
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return strings.TrimSpace(rest)
	}
	return credential
}

// Endpoint returns the base URL the client targets.
func (c *Client) Endpoint() string { return c.baseURL.String() }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, query, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete issues a DELETE request. Respond.io accepts a body on some DELETE
// endpoints (tag removal), so body may be non-nil.
func (c *Client) Delete(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, body)
}

// Probe performs the cheapest authenticated list call available. It is used
// by Manager's passive health checks and never retries.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.attempt(ctx, http.MethodGet, "/space/user", url.Values{"limit": {"1"}}, nil)
	return err
}

// Do performs a request, retrying temporary failures. The returned body is
// nil when the API answered without content.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.retryDelay
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			c.log.DebugContext(ctx, "upstream.retry", slog.String("method", method), slog.String("path", path), slog.Int("attempt", attempt), slog.Duration("wait", wait))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		res, err := c.attempt(ctx, method, path, query, payload)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !countsAgainstHealth(err) {
			return nil, err
		}
	}

	if c.onFailure != nil {
		c.onFailure(lastErr)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte) (json.RawMessage, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		// Non-JSON success bodies are passed through as a JSON string.
		quoted, _ := json.Marshal(string(data))
		return quoted, nil
	}
	return data, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
