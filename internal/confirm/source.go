package confirm

import (
	"context"
	"net/url"

	"github.com/keycustody/client-go/internal/api"
)

// Source delivers the KMS reply that concludes the confirmation step.
type Source interface {
	Await(ctx context.Context) (*api.ConfirmResponse, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*api.ConfirmResponse, error)

// Await implements Source.
func (f SourceFunc) Await(ctx context.Context) (*api.ConfirmResponse, error) {
	return f(ctx)
}

// HTTPSource posts Form to the ACS endpoint. It suits agents that obtain the
// identity provider's assertion without a browser window.
type HTTPSource struct {
	Client *api.Client
	Form   url.Values
}

// Await implements Source.
func (s *HTTPSource) Await(ctx context.Context) (*api.ConfirmResponse, error) {
	return s.Client.Confirm(ctx, s.Form)
}
