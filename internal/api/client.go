package api

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
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultBasePath   = "/KMS"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	contentTypeForm = "application/x-www-form-urlencoded"
	maxResponseSize = 1 << 20
)

// Client talks to the KMS. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *slog.Logger
}

// Config holds configuration for creating a new Client.
type Config struct {
	// BaseURL is the KMS origin, e.g. "https://kms.example.org".
	BaseURL string
	// BasePath is prefixed to every endpoint. Defaults to DefaultBasePath;
	// set it to "/" to talk to a KMS mounted at the root.
	BasePath string
	// HTTPClient is the underlying HTTP client (optional). It is never
	// modified; a Timeout applies to a copy.
	HTTPClient *http.Client
	// Timeout bounds each request. Zero keeps the timeout of HTTPClient,
	// or DefaultTimeout when HTTPClient is nil.
	Timeout time.Duration
	// MaxRetries bounds retries of idempotent requests. Zero means
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries int
	// RetryDelay is the base delay between retries (optional).
	RetryDelay time.Duration
	// Logger receives request-level debug logs (optional).
	Logger *slog.Logger
}

// NewClient creates a new API client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}

	httpClient := cfg.HTTPClient
	switch {
	case httpClient == nil:
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	case cfg.Timeout > 0:
		cp := *httpClient
		cp.Timeout = cfg.Timeout
		httpClient = &cp
	}

	retry := DefaultRetryConfig()
	switch {
	case cfg.MaxRetries < 0:
		retry.MaxRetries = 0
	case cfg.MaxRetries > 0:
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.BaseDelay = cfg.RetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + strings.TrimRight(basePath, "/"),
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
	}, nil
}

// Option configures the API client.
type Option func(*Config)

// WithBasePath sets the path prefix of every endpoint.
func WithBasePath(path string) Option {
	return func(c *Config) { c.BasePath = path }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithRetries sets the maximum number of retries for idempotent requests.
func WithRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithRetryDelay sets the base retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// New creates a new API client using functional options.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{BaseURL: baseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// BaseURL returns the endpoint prefix, base path included.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one round trip to the KMS.
type Request struct {
	Method string
	Path   string
	// Token is sent as a bearer token when set.
	Token string
	// Form is sent urlencoded in the body.
	Form url.Values
	// Query is appended to the URL.
	Query url.Values
	// Idempotent requests may be retried on transient failures.
	Idempotent bool
}

// Response is implemented by every success variant. Validate rejects a
// payload whose shape does not match the endpoint.
type Response interface {
	Validate() error
}

// Do performs req and decodes the reply into result. A reply carrying an
// "error" member is returned as *ServerError regardless of its other fields.
func (c *Client) Do(ctx context.Context, req Request, result Response) error {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	for attempt := 0; ; attempt++ {
		status, body, err := c.roundTrip(ctx, req, endpoint, attempt)
		retry := req.Idempotent && attempt < c.retry.MaxRetries && ctx.Err() == nil
		if err == nil {
			if !retry || !c.retry.ShouldRetry(attempt, status) {
				return decodeResponse(status, body, result)
			}
		} else if !retry {
			return err
		}

		if err := c.retry.Wait(ctx, attempt); err != nil {
			return &NetworkError{Err: err, URL: endpoint, Attempt: attempt + 1}
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req Request, endpoint string, attempt int) (int, []byte, error) {
	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", contentTypeForm)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "BEARER "+req.Token)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("kms request failed",
			"method", req.Method, "path", req.Path, "attempt", attempt+1, "err", err)
		return 0, nil, &NetworkError{Err: err, URL: endpoint, Attempt: attempt + 1}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &NetworkError{Err: err, URL: endpoint, Attempt: attempt + 1}
	}

	c.logger.Debug("kms request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"attempt", attempt+1,
		"duration", time.Since(start),
	)
	return resp.StatusCode, data, nil
}

// Decode parses a reply body obtained outside of Do, such as the page a
// confirmation window lands on, with the same rules Do applies.
func Decode(body []byte, result Response) error {
	return decodeResponse(http.StatusOK, body, result)
}

func decodeResponse(status int, body []byte, result Response) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Message: snippet(trimmed)}
		}
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	if raw, ok := fields["error"]; ok {
		return &ServerError{
			StatusCode: status,
			Message:    rawString(raw),
			Todo:       rawString(fields["todo"]),
		}
	}
	if status >= 400 {
		return &APIError{StatusCode: status, Message: snippet(trimmed)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, result); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if err := result.Validate(); err != nil {
		if errors.Is(err, ErrUnexpectedResponse) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
