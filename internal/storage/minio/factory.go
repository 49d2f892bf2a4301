package minio

import (
	"context"
	"log/slog"
	"time"

	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
)

// Factory builds MinIO bundles
type Factory struct {
	Logger           *slog.Logger
	ListingCacheSize int
	ListingCacheTTL  time.Duration
}

// NewFactory returns a factory with the given listing cache settings
func NewFactory(logger *slog.Logger, cacheSize int, cacheTTL time.Duration) *Factory {
	return &Factory{Logger: logger, ListingCacheSize: cacheSize, ListingCacheTTL: cacheTTL}
}

// Build implements bundle.Factory
func (f *Factory) Build(_ context.Context, scheme string, p *config.ProviderConfig) (*bundle.Components, error) {
	cfg := NewConfig(p)
	if f.ListingCacheSize > 0 {
		cfg.ListingCacheSize = f.ListingCacheSize
	}
	if f.ListingCacheTTL > 0 {
		cfg.ListingCacheTTL = f.ListingCacheTTL
	}

	b, err := NewBackend(scheme, cfg, f.Logger)
	if err != nil {
		return nil, err
	}
	return &bundle.Components{
		Driver: b,
		Native: b,
		NewManager: func(context.Context) (multipart.TransferManager, error) {
			return NewTransferManager(b), nil
		},
	}, nil
}

var _ bundle.Factory = (*Factory)(nil)
