package keycustody

import (
	"crypto/rsa"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/keycustody/client-go/internal/confirm"
)

const (
	defaultPollInterval   = confirm.DefaultInterval
	defaultSettleDelay    = confirm.DefaultSettleDelay
	defaultConfirmTimeout = confirm.DefaultTimeout
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL    string
	basePath   string
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	logger     *slog.Logger

	// Confirmation step. With neither a source nor a probe the client posts
	// confirmForm to the ACS endpoint.
	source         confirm.Source
	probe          confirm.Probe
	confirmForm    url.Values
	pollInterval   time.Duration
	settleDelay    time.Duration
	confirmTimeout time.Duration

	allowedOrigins []string
	relay          Relay
	keyPair        *rsa.PrivateKey
}

// Option configures the client.
type Option func(*clientConfig)

// WithBaseURL sets the KMS origin, e.g. "https://kms.example.com". Required.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithBasePath sets the path prefix of the KMS endpoints. Default: "/KMS".
func WithBasePath(path string) Option {
	return func(c *clientConfig) {
		c.basePath = path
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout. Default: 30s, or the timeout of
// the client given to WithHTTPClient. A client given to WithHTTPClient is
// never modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the retry count for the public key lookup. Protocol steps
// are never retried.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithConfirmationSource sets the source of the confirmation reply,
// replacing the default ACS post.
func WithConfirmationSource(source ConfirmationSource) Option {
	return func(c *clientConfig) {
		c.source = source
	}
}

// WithWindowProbe makes the client poll probe until the login window reaches
// the ACS endpoint. See WithPollInterval, WithSettleDelay and
// WithConfirmTimeout.
func WithWindowProbe(probe WindowProbe) Option {
	return func(c *clientConfig) {
		c.probe = probe
	}
}

// WithConfirmationForm sets the form posted to the ACS endpoint by the
// default confirmation source, e.g. a SAMLResponse obtained by the host.
func WithConfirmationForm(form url.Values) Option {
	return func(c *clientConfig) {
		c.confirmForm = form
	}
}

// WithPollInterval sets how often the window probe is polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.pollInterval = d
	}
}

// WithSettleDelay sets the wait between seeing the ACS location and reading
// the window body.
func WithSettleDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.settleDelay = d
	}
}

// WithConfirmTimeout bounds the confirmation step. Zero disables the bound.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.confirmTimeout = d
	}
}

// WithAllowedOrigins restricts HandleTask to the given origins. An empty list
// admits every origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *clientConfig) {
		c.allowedOrigins = append(c.allowedOrigins, origins...)
	}
}

// WithRelay sets where HandleTask delivers its outgoing messages.
func WithRelay(relay Relay) Option {
	return func(c *clientConfig) {
		c.relay = relay
	}
}

// WithKeyPair makes enrollment reuse priv instead of generating a fresh
// 4096-bit key. It is also the key a resumed enrollment solves its
// challenge with.
func WithKeyPair(priv *rsa.PrivateKey) Option {
	return func(c *clientConfig) {
		c.keyPair = priv
	}
}

