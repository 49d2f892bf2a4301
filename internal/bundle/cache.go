package bundle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/pkg/errors"
)

// State is the construction state of one cache entry.
type State int

const (
	NotStarted State = iota
	InProgress
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BuildObserver is told about every finished bundle construction.
type BuildObserver interface {
	ObserveBundleBuild(scheme string, duration time.Duration, err error)
}

type entry struct {
	state  State
	bundle *Bundle
	err    error
	done   chan struct{}
}

// Cache builds one Bundle per scheme on first use and keeps it until Invalidate or Close.
type Cache struct {
	registry  *config.Registry
	factories map[config.Family]Factory
	observer  multipart.Observer
	builds    BuildObserver
	base      *slog.Logger // handed to multipart handles, which add their own component
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	retired map[*Bundle]struct{} // invalidated bundles still draining
	closed  bool
}

// Option customizes a Cache.
type Option func(*Cache)

// WithFactory serves family with f, replacing any earlier factory.
func WithFactory(family config.Family, f Factory) Option {
	return func(c *Cache) { c.factories[family] = f }
}

// WithObserver attaches o to every multipart handle the cache's bundles open.
func WithObserver(o multipart.Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithBuildObserver reports bundle constructions to o.
func WithBuildObserver(o BuildObserver) Option {
	return func(c *Cache) { c.builds = o }
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.base = l
		c.logger = l.With("component", "bundle-cache")
	}
}

// NewCache creates a cache resolving provider records through registry. Record changes
// reported by the registry invalidate the affected schemes.
func NewCache(registry *config.Registry, opts ...Option) *Cache {
	c := &Cache{
		registry:  registry,
		factories: make(map[config.Family]Factory),
		base:      slog.Default(),
		logger:    slog.Default().With("component", "bundle-cache"),
		entries:   make(map[string]*entry),
		retired:   make(map[*Bundle]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	registry.OnChange(func(schemes []string) {
		for _, s := range schemes {
			c.Invalidate(context.Background(), s)
		}
	})
	return c
}

type buildingKey struct{}

// building reports whether ctx belongs to the construction of scheme's bundle.
func building(ctx context.Context, scheme string) bool {
	set, _ := ctx.Value(buildingKey{}).(map[string]bool)
	return set[scheme]
}

func withBuilding(ctx context.Context, scheme string) context.Context {
	prev, _ := ctx.Value(buildingKey{}).(map[string]bool)
	set := make(map[string]bool, len(prev)+1)
	for s := range prev {
		set[s] = true
	}
	set[scheme] = true
	return context.WithValue(ctx, buildingKey{}, set)
}

// Get returns the bundle of scheme, building it on first use. A failed construction is
// returned from cache until the scheme is invalidated. A request made from inside the
// construction of the same scheme gets BackendUnavailable.
func (c *Cache) Get(ctx context.Context, scheme string) (*Bundle, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, errors.BackendUnavailable(scheme, fmt.Errorf("bundle cache is closed"))
		}
		e, ok := c.entries[scheme]
		if !ok {
			e = &entry{}
			c.entries[scheme] = e
		}

		switch e.state {
		case Ready:
			c.mu.Unlock()
			return e.bundle, nil
		case Failed:
			c.mu.Unlock()
			return nil, e.err
		case InProgress:
			done := e.done
			c.mu.Unlock()
			if building(ctx, scheme) {
				c.logger.Warn("Bundle requested during its own construction", "scheme", scheme)
				return nil, errors.BackendUnavailable(scheme, fmt.Errorf("bundle construction in progress"))
			}
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		cfg, ok := c.registry.Get(scheme)
		if !ok {
			// Nothing was attempted, so nothing is cached: registering a record makes the
			// next call build.
			delete(c.entries, scheme)
			c.mu.Unlock()
			return nil, errors.BackendUnavailable(scheme, fmt.Errorf("no provider configuration for scheme %s", scheme))
		}
		e.state = InProgress
		e.done = make(chan struct{})
		c.mu.Unlock()

		start := time.Now()
		b, err := c.build(withBuilding(ctx, scheme), scheme, cfg)
		if c.builds != nil {
			c.builds.ObserveBundleBuild(scheme, time.Since(start), err)
		}
		return c.finish(ctx, scheme, e, b, err)
	}
}

// finish publishes a construction result. A bundle whose entry was invalidated meanwhile is
// retired and the result returned to the builder only.
func (c *Cache) finish(ctx context.Context, scheme string, e *entry, b *Bundle, err error) (*Bundle, error) {
	c.mu.Lock()
	if err != nil {
		e.state, e.err = Failed, err
		c.logger.Error("Failed to build bundle", "scheme", scheme, "error", err)
	} else {
		e.state, e.bundle = Ready, b
	}
	close(e.done)
	current := c.entries[scheme] == e && !c.closed
	c.mu.Unlock()

	if !current && b != nil {
		c.retire(ctx, b)
	}
	return b, err
}

func (c *Cache) build(ctx context.Context, scheme string, cfg *config.ProviderConfig) (*Bundle, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(scheme, "invalid provider configuration", err)
	}
	factory, ok := c.factories[cfg.Kind.Family()]
	if !ok {
		return nil, errors.BackendUnavailable(scheme, fmt.Errorf("no driver factory for %s", cfg.Kind))
	}

	comps, err := factory.Build(ctx, scheme, cfg)
	if err != nil {
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errors.BackendUnavailable(scheme, err)
	}

	b := newBundle()
	b.Scheme, b.Kind, b.Config = scheme, cfg.Kind, cfg
	b.Caps = backend.Resolve(comps.Driver)
	b.Native = comps.Native
	b.tracker = multipart.NewTracker()
	b.newManager, b.closeFn = comps.NewManager, comps.Close
	b.logger = c.logger.With("scheme", scheme, "kind", cfg.Kind)
	b.handleLogger = c.base
	b.bindCreate(c.observer)

	b.logger.Info("Bundle created", "unsupported", len(b.Caps.Unsupported()), "native", b.Native != nil,
		"transfer_manager", b.HasManager())
	return b, nil
}

// State returns the construction state of scheme.
func (c *Cache) State(scheme string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[scheme]; ok {
		return e.state
	}
	return NotStarted
}

// Schemes returns the schemes with a cache entry, sorted.
func (c *Cache) Schemes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Invalidate drops the entry of scheme; the next Get builds a new bundle. The old bundle is
// retired: writers and transfers still holding it finish normally before its transfer
// manager is shut down.
func (c *Cache) Invalidate(ctx context.Context, scheme string) {
	c.mu.Lock()
	e, ok := c.entries[scheme]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.entries, scheme)
	state, b := e.state, e.bundle
	c.mu.Unlock()

	c.logger.Info("Invalidated bundle", "scheme", scheme, "state", state)
	if state == Ready {
		c.retire(ctx, b)
	}
}

func (c *Cache) retire(ctx context.Context, b *Bundle) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err := b.Shutdown(ctx); err != nil {
			c.logger.Warn("Bundle shutdown failed", "scheme", b.Scheme, "error", err)
		}
		return
	}
	for old := range c.retired {
		select {
		case <-old.Stopped():
			delete(c.retired, old)
		default:
		}
	}
	c.retired[b] = struct{}{}
	c.mu.Unlock()

	b.Retire(ctx)
}

// Close runs the exit hook of every cached or still draining bundle once and rejects later
// requests. Multipart sessions left open by unfinished handles are aborted.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	bundles := make([]*Bundle, 0, len(c.entries)+len(c.retired))
	for _, e := range c.entries {
		if e.state == Ready {
			bundles = append(bundles, e.bundle)
		}
	}
	for b := range c.retired {
		bundles = append(bundles, b)
	}
	c.entries = make(map[string]*entry)
	c.retired = make(map[*Bundle]struct{})
	c.mu.Unlock()

	var errs []error
	for _, b := range bundles {
		if err := b.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Scheme, err))
		}
	}
	return stderrors.Join(errs...)
}
