package bundle

import (
	"context"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
)

// Components is what a provider factory builds for one scheme.
type Components struct {
	// Driver implements some of the backend capability interfaces.
	Driver any
	// Native is the part-upload client of object-store families, or nil.
	Native multipart.Client
	// NewManager builds the transfer manager on first request, or is nil.
	NewManager multipart.ManagerFunc
	// Close releases driver resources when the bundle is dropped.
	Close func(ctx context.Context) error
}

// Factory builds the components of one backend family.
type Factory interface {
	Build(ctx context.Context, scheme string, cfg *config.ProviderConfig) (*Components, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, scheme string, cfg *config.ProviderConfig) (*Components, error)

// Build implements Factory.
func (f FactoryFunc) Build(ctx context.Context, scheme string, cfg *config.ProviderConfig) (*Components, error) {
	return f(ctx, scheme, cfg)
}
