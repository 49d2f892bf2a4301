package cloudpath

import (
	"context"

	"github.com/objectfs/cloudpath/internal/async"
	"github.com/objectfs/cloudpath/pkg/types"
)

// start runs fn asynchronously. Local work is offloaded to its own goroutine rather than
// dispatched through the accessor, which rejects async calls on the file scheme.
func start[T any](ctx context.Context, p Path, fn func(context.Context) (T, error)) *async.Future[T] {
	if p.u.IsLocal() {
		return async.Offload(ctx, func() (T, error) { return fn(ctx) })
	}
	return async.Go(ctx, fn)
}

func done(err error) (struct{}, error) { return struct{}{}, err }

// StatAsync is Stat in the background.
func (p Path) StatAsync(ctx context.Context) *async.Future[types.FileInfo] {
	if !p.u.IsLocal() {
		return p.fs.access.StatAsync(ctx, p.u)
	}
	return start(ctx, p, p.Stat)
}

// ExistsAsync is Exists in the background.
func (p Path) ExistsAsync(ctx context.Context) *async.Future[bool] {
	if !p.u.IsLocal() {
		return p.fs.access.ExistsAsync(ctx, p.u)
	}
	return start(ctx, p, p.Exists)
}

// ReadBytesAsync reads the whole content in the background.
func (p Path) ReadBytesAsync(ctx context.Context) *async.Future[[]byte] {
	return start(ctx, p, p.ReadBytes)
}

// WriteBytesAsync writes data in the background. The caller must not modify data until the
// future resolves.
func (p Path) WriteBytesAsync(ctx context.Context, data []byte, opts ...WriteOption) *async.Future[struct{}] {
	return start(ctx, p, func(ctx context.Context) (struct{}, error) {
		return done(p.WriteBytes(ctx, data, opts...))
	})
}

// CopyToAsync is CopyTo in the background.
func (p Path) CopyToAsync(ctx context.Context, dst Path, opts ...WriteOption) *async.Future[struct{}] {
	return start(ctx, p, func(ctx context.Context) (struct{}, error) {
		return done(p.CopyTo(ctx, dst, opts...))
	})
}

// RemoveAsync is Remove in the background.
func (p Path) RemoveAsync(ctx context.Context) *async.Future[struct{}] {
	return start(ctx, p, func(ctx context.Context) (struct{}, error) {
		return done(p.Remove(ctx))
	})
}

// LsAsync lists the direct children of p in the background.
func (p Path) LsAsync(ctx context.Context) *async.Future[[]Path] {
	return start(ctx, p, p.Ls)
}
