// Package accessor dispatches catalog operations to the backend serving a path's scheme.
//
// Paths on the file scheme go straight to the local driver. Every other scheme is served by
// the cached bundle of that scheme, whose capabilities were resolved once when the bundle was
// built. An operation the driver has no alias for fails with UnsupportedOperation.
package accessor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/uri"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// OperationObserver is told about every dispatched operation.
type OperationObserver interface {
	ObserveOperation(scheme, op string, duration time.Duration, err error)
}

// Accessor routes operations by scheme.
type Accessor struct {
	cache    *bundle.Cache
	local    backend.Capabilities
	observer OperationObserver
	logger   *slog.Logger
}

// Option customizes an Accessor.
type Option func(*Accessor)

// WithObserver reports every operation to o.
func WithObserver(o OperationObserver) Option {
	return func(a *Accessor) { a.observer = o }
}

// New returns an accessor serving the file scheme with localDriver and every other scheme
// from cache.
func New(cache *bundle.Cache, localDriver any, opts ...Option) *Accessor {
	a := &Accessor{
		cache:  cache,
		local:  backend.Resolve(localDriver),
		logger: slog.Default().With("component", "accessor"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parse extracts the URI of target, which is a string or a types.Target.
func Parse(target any) (uri.URI, error) {
	switch t := target.(type) {
	case uri.URI:
		return t, nil
	case string:
		return uri.Parse(t)
	case types.Target:
		return uri.Parse(t.URI())
	default:
		return uri.URI{}, errors.PathInvalid(fmt.Sprint(target), fmt.Sprintf("unsupported target type %T", target))
	}
}

// call is one dispatched operation: the parsed target and the capabilities serving it.
type call struct {
	op     backend.Op
	u      uri.URI
	caps   *backend.Capabilities
	bundle *bundle.Bundle
	start  time.Time
}

func (c *call) path() string { return c.u.Native() }

func (c *call) unsupported() error {
	alias := backend.Aliases(c.op)
	if c.op == backend.OpCreate && c.bundle != nil {
		alias = append(alias, "multipart")
	}
	return errors.UnsupportedOperation(c.u.Scheme(), string(c.op), alias).WithPath(c.u.Scheme(), c.path())
}

// dispatch parses target and resolves the capabilities of its scheme. The file scheme never
// reaches the bundle cache.
func (a *Accessor) dispatch(ctx context.Context, op backend.Op, target any) (*call, error) {
	u, err := Parse(target)
	if err != nil {
		return nil, err
	}
	c := &call{op: op, u: u, start: time.Now()}
	if u.IsLocal() {
		c.caps = &a.local
		return c, nil
	}

	b, err := a.cache.Get(ctx, u.Scheme())
	if err != nil {
		a.observe(c, err)
		return nil, err
	}
	c.bundle = b
	c.caps = &b.Caps
	return c, nil
}

func (a *Accessor) observe(c *call, err error) {
	if a.observer != nil {
		a.observer.ObserveOperation(c.u.Scheme(), string(c.op), time.Since(c.start), err)
	}
}

// done records the outcome of c and returns err unchanged.
func (a *Accessor) done(c *call, err error) error {
	a.observe(c, err)
	if err != nil && !errors.IsNotFound(err) {
		a.logger.Debug("Operation failed", "op", c.op, "target", c.u.String(), "error", err)
	}
	return err
}

// pair dispatches a two-path operation. Both paths must share a scheme.
func (a *Accessor) pair(ctx context.Context, op backend.Op, src, dst any) (*call, uri.URI, error) {
	c, err := a.dispatch(ctx, op, src)
	if err != nil {
		return nil, uri.URI{}, err
	}
	d, err := Parse(dst)
	if err != nil {
		return nil, uri.URI{}, err
	}
	if d.Scheme() != c.u.Scheme() {
		return nil, uri.URI{}, errors.PathInvalid(d.String(),
			fmt.Sprintf("%s across schemes %s and %s", op, c.u.Scheme(), d.Scheme()))
	}
	return c, d, nil
}

// Bundle returns the bundle serving target, or nil for the file scheme.
func (a *Accessor) Bundle(ctx context.Context, target any) (*bundle.Bundle, error) {
	u, err := Parse(target)
	if err != nil {
		return nil, err
	}
	if u.IsLocal() {
		return nil, nil
	}
	return a.cache.Get(ctx, u.Scheme())
}

// Capabilities returns the resolved operation set serving target.
func (a *Accessor) Capabilities(ctx context.Context, target any) (*backend.Capabilities, error) {
	c, err := a.dispatch(ctx, backend.OpStat, target)
	if err != nil {
		return nil, err
	}
	return c.caps, nil
}
