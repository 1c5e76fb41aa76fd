package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/keycustody/client-go/internal/api"
)

// Default polling parameters.
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultSettleDelay = time.Second
	DefaultTimeout     = 5 * time.Minute

	// CompletionMarker appears in the window location once the identity
	// provider has posted back to the KMS.
	CompletionMarker = "/ACS"
)

var (
	// ErrAccessDenied is wrapped by probes while the window shows a page
	// the agent may not read, typically the identity provider's login form.
	ErrAccessDenied = errors.New("confirmation window not readable")
	// ErrWindowClosed is returned once the user closes the window.
	ErrWindowClosed = errors.New("confirmation window closed")
	// ErrTimeout is returned when the marker does not show up in time.
	ErrTimeout = errors.New("confirmation timed out")
	// ErrBusy is returned when Await is called while another Await runs.
	ErrBusy = errors.New("poller already waiting")
)

// Observation is one look at the confirmation window.
type Observation struct {
	Location string
	Body     []byte
	Closed   bool
}

// Probe inspects the confirmation window.
type Probe func(ctx context.Context) (Observation, error)

// Poller implements Source by polling a Probe.
type Poller struct {
	probe       Probe
	interval    time.Duration
	settleDelay time.Duration
	timeout     time.Duration
	marker      string
	logger      *slog.Logger

	active *atomic.Bool
	polls  *atomic.Int64
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between probes. Non-positive values keep
// DefaultInterval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithSettleDelay sets the pause between spotting the marker and reading
// the page.
func WithSettleDelay(d time.Duration) PollerOption {
	return func(p *Poller) { p.settleDelay = d }
}

// WithTimeout bounds the whole wait. Zero disables the bound.
func WithTimeout(d time.Duration) PollerOption {
	return func(p *Poller) { p.timeout = d }
}

// WithMarker overrides CompletionMarker.
func WithMarker(marker string) PollerOption {
	return func(p *Poller) { p.marker = marker }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// NewPoller creates a Poller around probe.
func NewPoller(probe Probe, opts ...PollerOption) *Poller {
	p := &Poller{
		probe:       probe,
		interval:    DefaultInterval,
		settleDelay: DefaultSettleDelay,
		timeout:     DefaultTimeout,
		marker:      CompletionMarker,
		logger:      slog.New(slog.DiscardHandler),
		active:      atomic.NewBool(false),
		polls:       atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.settleDelay < 0 {
		p.settleDelay = 0
	}
	return p
}

// Polls returns the number of probes issued so far.
func (p *Poller) Polls() int64 {
	return p.polls.Load()
}

// Await implements Source. It returns once the marker has been seen and the
// page parsed, or with ErrWindowClosed, ErrTimeout or the context error.
// No timer outlives the call.
func (p *Poller) Await(ctx context.Context) (*api.ConfirmResponse, error) {
	if !p.active.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.active.Store(false)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.timeout, ErrTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		obs, err := p.look(ctx)
		switch {
		case err != nil:
			return nil, err
		case obs.Closed:
			return nil, ErrWindowClosed
		case strings.Contains(obs.Location, p.marker):
			p.logger.Debug("confirmation marker seen", "polls", p.polls.Load())
			return p.settle(ctx)
		}

		select {
		case <-ctx.Done():
			return nil, cause(ctx)
		case <-ticker.C:
		}
	}
}

// look runs the probe once. Access errors count as "nothing to see yet".
func (p *Poller) look(ctx context.Context) (Observation, error) {
	p.polls.Inc()
	obs, err := p.probe(ctx)
	if err == nil {
		return obs, nil
	}
	if errors.Is(err, ErrAccessDenied) {
		return Observation{}, nil
	}
	if ctx.Err() != nil {
		return Observation{}, cause(ctx)
	}
	return Observation{}, fmt.Errorf("probe confirmation window: %w", err)
}

func (p *Poller) settle(ctx context.Context) (*api.ConfirmResponse, error) {
	timer := time.NewTimer(p.settleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, cause(ctx)
	case <-timer.C:
	}

	p.polls.Inc()
	obs, err := p.probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("read confirmation page: %w", err)
	}
	if obs.Closed {
		return nil, ErrWindowClosed
	}

	var resp api.ConfirmResponse
	if err := api.Decode(obs.Body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func cause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}
