package keycustody

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"go.uber.org/atomic"

	"github.com/keycustody/client-go/internal/api"
	"github.com/keycustody/client-go/internal/confirm"
	"github.com/keycustody/client-go/internal/crypto"
)

// Confirmation is the KMS reply that concludes the out-of-band login. Its
// Task decides whether the agent enrolls or unwraps.
type Confirmation = api.ConfirmResponse

// ConfirmationSource delivers the Confirmation of one flow.
type ConfirmationSource = confirm.Source

// ConfirmationFunc adapts a function to ConfirmationSource.
type ConfirmationFunc = confirm.SourceFunc

// WindowObservation is one look at the login window.
type WindowObservation = confirm.Observation

// WindowProbe inspects the login window. See WithWindowProbe.
type WindowProbe = confirm.Probe

// Confirmation tasks.
const (
	TaskSendPubKey     = api.TaskSendPubKey
	TaskSolveChallenge = api.TaskSolveChallenge
	TaskUnwrap         = api.TaskUnwrap
)

// PublicKey is a public key held by the KMS.
type PublicKey struct {
	Key       *rsa.PublicKey
	KeyNameID string
}

// Client runs key custody flows against one KMS. It is safe for concurrent
// use; every flow runs in its own Session.
type Client struct {
	apiClient *api.Client
	secret    string
	cfg       *clientConfig
	logger    *slog.Logger
	origins   map[string]struct{}

	sessions *atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(cfg *clientConfig) (*api.Client, error) {
	apiOpts := []api.Option{
		api.WithLogger(cfg.logger),
	}
	if cfg.basePath != "" {
		apiOpts = append(apiOpts, api.WithBasePath(cfg.basePath))
	}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.timeout))
	}
	if cfg.retries != 0 {
		apiOpts = append(apiOpts, api.WithRetries(cfg.retries))
	}
	return api.New(cfg.baseURL, apiOpts...)
}

// New creates a client for the KMS set with WithBaseURL. secret is the
// base64 pre-shared secret mixed into every wrapping key.
func New(secret string, opts ...Option) (*Client, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if _, err := crypto.FromTransportBase64(secret); err != nil {
		return nil, ErrInvalidSecret
	}

	cfg := &clientConfig{
		pollInterval:   defaultPollInterval,
		settleDelay:    defaultSettleDelay,
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	apiClient, err := buildAPIClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure KMS client: %w", err)
	}

	origins := make(map[string]struct{}, len(cfg.allowedOrigins))
	for _, o := range cfg.allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Client{
		apiClient: apiClient,
		secret:    crypto.RestorePlus(secret),
		cfg:       cfg,
		logger:    cfg.logger,
		origins:   origins,
		sessions:  atomic.NewInt64(0),
	}, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Close makes every later flow fail with ErrClientClosed. Flows already
// running finish normally.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Sessions returns the number of sessions created so far.
func (c *Client) Sessions() int64 {
	return c.sessions.Load()
}

// NewSession creates a session for one flow.
func (c *Client) NewSession() (*Session, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	c.sessions.Inc()
	return newSession(c), nil
}

// GetPrivateKey runs the retrieve flow for username in a new session. If the
// KMS holds no key for the account yet, the enroll flow runs instead and
// the freshly enrolled key is returned.
func (c *Client) GetPrivateKey(ctx context.Context, username, password string) (*rsa.PrivateKey, error) {
	s, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	return s.GetPrivateKey(ctx, username, password)
}

// GetPublicKey looks up a public key in a new session.
func (c *Client) GetPublicKey(ctx context.Context, id Identifier) (*PublicKey, error) {
	s, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	return s.GetPublicKey(ctx, id)
}

// confirmationSource returns the source for one flow started for username.
func (c *Client) confirmationSource(username string) ConfirmationSource {
	switch {
	case c.cfg.source != nil:
		return c.cfg.source
	case c.cfg.probe != nil:
		return confirm.NewPoller(c.cfg.probe,
			confirm.WithInterval(c.cfg.pollInterval),
			confirm.WithSettleDelay(c.cfg.settleDelay),
			confirm.WithTimeout(c.cfg.confirmTimeout),
			confirm.WithLogger(c.logger),
		)
	}

	form := url.Values{}
	for k, v := range c.cfg.confirmForm {
		form[k] = append([]string(nil), v...)
	}
	if username != "" {
		form.Set("username", username)
	}
	return &confirm.HTTPSource{Client: c.apiClient, Form: form}
}

// allowed reports whether origin may submit tasks.
func (c *Client) allowed(origin string) bool {
	if len(c.origins) == 0 {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}
