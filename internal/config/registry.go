package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// ChangeListener is notified with every scheme whose provider record changed.
type ChangeListener func(schemes []string)

// Registry holds one ProviderConfig per kind and the scheme aliases resolving to it.
// Records handed out by Get are copies; mutation goes through Update and UpdateAuth.
type Registry struct {
	mu        sync.RWMutex
	schemes   map[string]Kind
	providers map[Kind]*ProviderConfig
	listeners []ChangeListener
	setenv    func(key, value string) error
	logger    *slog.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithSetenv replaces os.Setenv as the environment mirror used by UpdateAuth.
func WithSetenv(setenv func(key, value string) error) RegistryOption {
	return func(r *Registry) { r.setenv = setenv }
}

// NewRegistry creates an empty registry with the default scheme aliases.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		schemes:   make(map[string]Kind, len(DefaultSchemes)),
		providers: make(map[Kind]*ProviderConfig),
		setenv:    os.Setenv,
		logger:    slog.Default().With("component", "provider-registry"),
	}
	for s, k := range DefaultSchemes {
		r.schemes[s] = k
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRegistryFromConfig creates a registry populated from the providers section.
func NewRegistryFromConfig(cfg *Configuration, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(opts...)
	for scheme, p := range cfg.Providers {
		if err := r.Register(scheme, p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ResolveScheme returns the kind serving scheme.
func (r *Registry) ResolveScheme(scheme string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.schemes[strings.ToLower(scheme)]
	return k, ok
}

// RegisterScheme adds a custom scheme alias for kind.
func (r *Registry) RegisterScheme(scheme string, kind Kind) error {
	scheme = strings.ToLower(scheme)
	if scheme == "" || scheme == "file" {
		return fmt.Errorf("scheme %q cannot be re-registered", scheme)
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown provider kind: %q", kind)
	}
	r.mu.Lock()
	r.schemes[scheme] = kind
	r.mu.Unlock()
	return nil
}

// Register stores cfg for the kind behind scheme, replacing any existing record.
// scheme may also be a kind name. cfg is not validated here.
func (r *Registry) Register(scheme string, cfg *ProviderConfig) error {
	kind, ok := r.ResolveScheme(scheme)
	if !ok {
		return fmt.Errorf("unknown scheme: %q", scheme)
	}
	if kind == KindLocal {
		return fmt.Errorf("the file scheme takes no provider configuration")
	}
	if cfg == nil {
		cfg = DefaultProvider(kind)
	}
	stored := cfg.Clone()
	if stored.Kind == "" {
		stored.Kind = kind
	}
	if stored.Kind != kind {
		return fmt.Errorf("scheme %q serves %s, not %s", scheme, kind, stored.Kind)
	}

	r.mu.Lock()
	_, replaced := r.providers[kind]
	r.providers[kind] = stored
	r.mu.Unlock()

	r.logger.Debug("Registered provider", "scheme", scheme, "kind", kind)
	if replaced {
		r.notify(kind)
	}
	return nil
}

// Get returns a copy of the record serving scheme.
func (r *Registry) Get(scheme string) (*ProviderConfig, bool) {
	kind, ok := r.ResolveScheme(scheme)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Update overlays fields onto the record serving scheme. The update is atomic:
// on error the stored record is unchanged.
func (r *Registry) Update(scheme string, fields map[string]interface{}) error {
	_, err := r.update(scheme, fields)
	return err
}

// UpdateAuth applies fields, mirrors the resulting credentials into the environment and
// notifies listeners so cached bundles for the provider are rebuilt on next use.
func (r *Registry) UpdateAuth(scheme string, fields map[string]interface{}) error {
	updated, err := r.update(scheme, fields)
	if err != nil {
		return err
	}
	if err := updated.SetEnv(r.setenv); err != nil {
		return err
	}
	r.logger.Info("Updated provider credentials", "scheme", scheme, "kind", updated.Kind)
	r.notify(updated.Kind)
	return nil
}

func (r *Registry) update(scheme string, fields map[string]interface{}) (*ProviderConfig, error) {
	kind, ok := r.ResolveScheme(scheme)
	if !ok {
		return nil, fmt.Errorf("unknown scheme: %q", scheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.providers[kind]
	if !ok {
		current = DefaultProvider(kind)
	}
	next := current.Clone()
	if err := next.Apply(fields); err != nil {
		return nil, err
	}
	if next.Kind != kind {
		return nil, fmt.Errorf("cannot change provider kind from %s to %s", kind, next.Kind)
	}
	r.providers[kind] = next
	return next.Clone(), nil
}

// OnChange registers a listener for record replacement and credential updates.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// SchemesFor returns every scheme aliasing kind, sorted.
func (r *Registry) SchemesFor(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for s, k := range r.schemes {
		if k == kind {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Kinds returns the kinds that currently have a record, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) notify(kind Kind) {
	schemes := r.SchemesFor(kind)
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(schemes)
	}
}
