// Package cloudpath provides path objects over local and cloud storage.
//
// A FileSystem owns the provider registry, the per-scheme bundle cache, the chunk policy and
// the loader registry. Paths are immutable values created by a FileSystem:
//
//	fs, err := cloudpath.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer fs.Close(ctx)
//
//	p := fs.MustPath("s3://bucket/reports/2024.csv")
//	data, err := p.ReadBytes(ctx)
//
// Local paths are served directly by the local driver and never build a bundle.
package cloudpath

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/objectfs/cloudpath/internal/accessor"
	"github.com/objectfs/cloudpath/internal/backend/local"
	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/chunk"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/metrics"
	"github.com/objectfs/cloudpath/internal/storage/memory"
	"github.com/objectfs/cloudpath/internal/storage/minio"
	"github.com/objectfs/cloudpath/internal/storage/s3"
	"github.com/objectfs/cloudpath/internal/uri"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// FileSystem is the entry point for creating and operating on paths. It is safe for
// concurrent use.
type FileSystem struct {
	cfg      *config.Configuration
	registry *config.Registry
	cache    *bundle.Cache
	access   *accessor.Accessor
	policy   *chunk.Policy
	metrics  *metrics.Collector
	memory   *memory.Store
	logger   *slog.Logger

	loadersMu sync.RWMutex
	loaders   map[string]Loader

	closeOnce sync.Once
	closeErr  error
}

// Option customizes a FileSystem.
type Option func(*fsOptions)

type fsOptions struct {
	registryOpts []config.RegistryOption
	factories    map[config.Family]bundle.Factory
	collector    *metrics.Collector
	store        *memory.Store
	logger       *slog.Logger
}

// WithRegistryOptions passes options to the provider registry, such as config.WithSetenv.
func WithRegistryOptions(opts ...config.RegistryOption) Option {
	return func(o *fsOptions) { o.registryOpts = append(o.registryOpts, opts...) }
}

// WithFactory replaces the bundle factory of a backend family.
func WithFactory(family config.Family, f bundle.Factory) Option {
	return func(o *fsOptions) { o.factories[family] = f }
}

// WithMetrics reports to c instead of a private collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *fsOptions) { o.collector = c }
}

// WithMemoryStore backs the memory family with store.
func WithMemoryStore(store *memory.Store) Option {
	return func(o *fsOptions) { o.store = store }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *fsOptions) { o.logger = l }
}

// New creates a FileSystem from cfg. A nil cfg uses config.NewDefault().
func New(cfg *config.Configuration, opts ...Option) (*FileSystem, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError("", "invalid configuration", err).WithComponent("cloudpath")
	}

	o := &fsOptions{
		factories: map[config.Family]bundle.Factory{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With("component", "cloudpath")

	policy, err := chunk.NewPolicy(cfg.Performance)
	if err != nil {
		return nil, errors.ConfigurationError("", "invalid chunk policy", err).WithComponent("cloudpath")
	}

	registry, err := config.NewRegistryFromConfig(cfg, o.registryOpts...)
	if err != nil {
		return nil, errors.ConfigurationError("", "invalid provider configuration", err).WithComponent("cloudpath")
	}

	collector := o.collector
	if collector == nil {
		mc := metrics.DefaultConfig()
		mc.Enabled = true
		if cfg.Global.MetricsAddr != "" {
			mc.Addr = cfg.Global.MetricsAddr
		}
		collector, err = metrics.NewCollector(mc)
		if err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil {
		store = memory.NewStore()
	}
	perf := cfg.Performance
	defaults := map[config.Family]bundle.Factory{
		config.FamilyS3:     s3.NewFactory(o.logger, perf.ListingCacheSize, perf.ListingCacheTTL),
		config.FamilyMinio:  minio.NewFactory(o.logger, perf.ListingCacheSize, perf.ListingCacheTTL),
		config.FamilyMemory: memory.NewFactory(store),
	}
	for family, f := range o.factories {
		defaults[family] = f
	}

	cacheOpts := []bundle.Option{
		bundle.WithObserver(collector),
		bundle.WithBuildObserver(collector),
		bundle.WithLogger(o.logger),
	}
	for family, f := range defaults {
		cacheOpts = append(cacheOpts, bundle.WithFactory(family, f))
	}
	cache := bundle.NewCache(registry, cacheOpts...)

	fs := &FileSystem{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		access:   accessor.New(cache, local.New(), accessor.WithObserver(collector)),
		policy:   policy,
		metrics:  collector,
		memory:   store,
		logger:   logger,
		loaders:  map[string]Loader{},
	}
	fs.registerBuiltinLoaders()
	return fs, nil
}

// Path parses raw into a path of this FileSystem. Strings without "://" are local paths.
func (fs *FileSystem) Path(raw string) (Path, error) {
	u, err := uri.Parse(raw)
	if err != nil {
		return Path{}, err
	}
	return Path{u: u, fs: fs}, nil
}

// MustPath is Path for literals known to be valid.
func (fs *FileSystem) MustPath(raw string) Path {
	p, err := fs.Path(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// PathOf converts any target (string, uri.URI or types.Target) into a Path.
func (fs *FileSystem) PathOf(target any) (Path, error) {
	if p, ok := target.(Path); ok {
		return Path{u: p.u, fs: fs}, nil
	}
	u, err := accessor.Parse(target)
	if err != nil {
		return Path{}, err
	}
	return Path{u: u, fs: fs}, nil
}

// Local returns the path of a local file.
func (fs *FileSystem) Local(p string) Path {
	return Path{u: uri.Local(p), fs: fs}
}

// Registry returns the provider registry. Registering or updating a provider drops the
// scheme's bundle.
func (fs *FileSystem) Registry() *config.Registry { return fs.registry }

// Configure registers cfg for scheme. A nil cfg uses the defaults of the scheme's kind.
func (fs *FileSystem) Configure(scheme string, cfg *config.ProviderConfig) error {
	return fs.registry.Register(scheme, cfg)
}

// Accessor returns the scheme dispatcher used by paths.
func (fs *FileSystem) Accessor() *accessor.Accessor { return fs.access }

// Policy returns the chunk policy.
func (fs *FileSystem) Policy() *chunk.Policy { return fs.policy }

// Metrics returns the collector receiving operation and transfer metrics.
func (fs *FileSystem) Metrics() *metrics.Collector { return fs.metrics }

// MemoryStore returns the store backing the memory family.
func (fs *FileSystem) MemoryStore() *memory.Store { return fs.memory }

// Bundles returns the schemes with a cached bundle and their state.
func (fs *FileSystem) Bundles() map[string]bundle.State {
	out := map[string]bundle.State{}
	for _, s := range fs.cache.Schemes() {
		out[s] = fs.cache.State(s)
	}
	return out
}

// Invalidate drops the bundle of scheme; the next operation rebuilds it.
func (fs *FileSystem) Invalidate(ctx context.Context, scheme string) {
	fs.cache.Invalidate(ctx, scheme)
}

// Close shuts down every bundle, aborting open multipart sessions, and stops the metrics
// server if one was started. Close is idempotent.
func (fs *FileSystem) Close(ctx context.Context) error {
	fs.closeOnce.Do(func() {
		if timeout := fs.cfg.Performance.ShutdownTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var errs []error
		if err := fs.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := fs.metrics.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		fs.closeErr = stderrors.Join(errs...)
		fs.logger.Debug("FileSystem closed", "error", fs.closeErr)
	})
	return fs.closeErr
}

// plan selects the transfer plan for size bytes moving in dir against the backend of u.
// The returned bundle is held until release is called.
func (fs *FileSystem) plan(ctx context.Context, u uri.URI, size int64, dir types.Direction) (chunk.Plan, *bundle.Bundle, func(), error) {
	b, release, err := fs.holdBundle(ctx, u)
	if err != nil {
		return chunk.Plan{}, nil, nil, err
	}
	env := chunk.Env{}
	if b != nil {
		env.HasManager = b.HasManager()
		switch dir {
		case types.DirectionRead:
			env.PreferManager = b.Config.Read.ManagerDefault
		default:
			env.PreferManager = b.Config.Write.ManagerDefault
		}
	}
	plan := fs.policy.Select(size, dir, env)
	fs.metrics.ObservePlan(plan)
	return plan, b, release, nil
}

// holdBundle returns the bundle serving u, held until release is called so that an
// invalidation in the meantime cannot shut its transfer manager down. Local paths have no
// bundle.
func (fs *FileSystem) holdBundle(ctx context.Context, u uri.URI) (*bundle.Bundle, func(), error) {
	const attempts = 3
	for i := 0; ; i++ {
		b, err := fs.access.Bundle(ctx, u)
		if err != nil {
			return nil, nil, err
		}
		if b == nil {
			return nil, func() {}, nil
		}
		release, ok := b.Acquire()
		if ok || i == attempts-1 {
			return b, release, nil
		}
	}
}
