package s3

import (
	"context"
	"log/slog"
	"time"

	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
)

// Factory builds S3-family bundles
type Factory struct {
	Logger           *slog.Logger
	ListingCacheSize int
	ListingCacheTTL  time.Duration
}

// NewFactory returns a factory with the given listing cache settings. Zero values take the
// cache defaults.
func NewFactory(logger *slog.Logger, cacheSize int, cacheTTL time.Duration) *Factory {
	return &Factory{Logger: logger, ListingCacheSize: cacheSize, ListingCacheTTL: cacheTTL}
}

// Build implements bundle.Factory
func (f *Factory) Build(ctx context.Context, scheme string, p *config.ProviderConfig) (*bundle.Components, error) {
	cfg := NewConfig(p)
	if f.ListingCacheSize > 0 {
		cfg.ListingCacheSize = f.ListingCacheSize
	}
	if f.ListingCacheTTL > 0 {
		cfg.ListingCacheTTL = f.ListingCacheTTL
	}

	b, err := NewBackend(ctx, scheme, cfg, f.Logger)
	if err != nil {
		return nil, err
	}
	return &bundle.Components{
		Driver: b,
		Native: b,
		NewManager: func(context.Context) (multipart.TransferManager, error) {
			return NewTransferManager(b), nil
		},
		Close: func(context.Context) error {
			return b.Close()
		},
	}, nil
}

var _ bundle.Factory = (*Factory)(nil)
