package memory

import (
	"context"
	"strconv"

	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
)

// ExtraEqualParts is the provider extra key enabling R2-style equal part enforcement.
const ExtraEqualParts = "equal_parts"

// Factory builds memory bundles over one shared Store.
type Factory struct {
	Store *Store
}

// NewFactory returns a factory over store, or over a fresh store when store is nil.
func NewFactory(store *Store) *Factory {
	if store == nil {
		store = NewStore()
	}
	return &Factory{Store: store}
}

// Build implements bundle.Factory.
func (f *Factory) Build(_ context.Context, scheme string, cfg *config.ProviderConfig) (*bundle.Components, error) {
	if v, ok := cfg.Extra[ExtraEqualParts]; ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		f.Store.SetEqualParts(enabled)
	}

	store := f.Store
	return &bundle.Components{
		Driver: NewDriver(store, scheme),
		Native: store,
		NewManager: func(context.Context) (multipart.TransferManager, error) {
			return NewManager(store), nil
		},
	}, nil
}

var _ bundle.Factory = (*Factory)(nil)
