// Package bundle builds and caches the per-scheme set of backend resources: the resolved
// driver capabilities, the native multipart client and the lazily built transfer manager.
package bundle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/internal/storage"
)

// Bundle is the cached backend of one scheme.
type Bundle struct {
	Scheme string
	Kind   config.Kind
	Caps   backend.Capabilities
	// Native is nil for families without part upload primitives.
	Native multipart.Client
	Config *config.ProviderConfig

	tracker    *multipart.Tracker
	newManager multipart.ManagerFunc
	closeFn    func(ctx context.Context) error
	logger     *slog.Logger

	// handleLogger carries no component or scheme attributes; handles add their own.
	handleLogger *slog.Logger

	mu       sync.Mutex
	manager  multipart.TransferManager
	closed   bool
	active   int  // handles and transfers holding the bundle
	retiring bool // set by Retire; idle closes once active drops to zero

	idle     chan struct{}
	idleOnce sync.Once
	stopped  chan struct{}
	shutdown sync.Once
	stopErr  error
}

func newBundle() *Bundle {
	return &Bundle{idle: make(chan struct{}), stopped: make(chan struct{})}
}

// HasManager reports whether the family provides a transfer manager.
func (b *Bundle) HasManager() bool {
	return b.newManager != nil
}

// Tracker returns the multipart sessions opened through this bundle.
func (b *Bundle) Tracker() *multipart.Tracker {
	return b.tracker
}

// TransferManager returns the bundle's transfer manager, building it on first call. It
// returns nil and no error for families without one.
func (b *Bundle) TransferManager(ctx context.Context) (multipart.TransferManager, error) {
	if b.newManager == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.manager != nil {
		return b.manager, nil
	}
	if b.closed {
		return nil, errors.New("bundle for scheme " + b.Scheme + " is closed")
	}

	tm, err := b.newManager(ctx)
	if err != nil {
		return nil, err
	}
	b.manager = tm
	b.logger.Info("Transfer manager created")
	return tm, nil
}

// Acquire marks the bundle as in use by a write handle or a transfer. The returned func
// releases it and may be called more than once. ok is false once the bundle has stopped or
// is retiring with no holder left; the caller should fetch the current bundle instead.
func (b *Bundle) Acquire() (release func(), ok bool) {
	b.mu.Lock()
	if b.closed || (b.retiring && b.active == 0) {
		b.mu.Unlock()
		return func() {}, false
	}
	b.active++
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(b.release) }, true
}

func (b *Bundle) release() {
	b.mu.Lock()
	b.active--
	idle := b.retiring && b.active == 0
	b.mu.Unlock()
	if idle {
		b.idleOnce.Do(func() { close(b.idle) })
	}
}

// Retire shuts the bundle down once every holder from Acquire has released it. Open
// multipart sessions belong to their handles and are not aborted. The returned channel is
// closed when the bundle has stopped, by Retire or by an earlier Shutdown.
func (b *Bundle) Retire(ctx context.Context) <-chan struct{} {
	b.mu.Lock()
	b.retiring = true
	idle := b.active == 0
	pending := b.active
	b.mu.Unlock()
	if idle {
		b.idleOnce.Do(func() { close(b.idle) })
	} else {
		b.logger.Info("Retiring bundle after active transfers finish", "active", pending)
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		select {
		case <-b.idle:
			if err := b.stop(ctx, false); err != nil {
				b.logger.Warn("Retired bundle shutdown failed", "error", err)
			}
		case <-b.stopped:
		}
	}()
	return b.stopped
}

// Stopped is closed once the bundle has shut down.
func (b *Bundle) Stopped() <-chan struct{} {
	return b.stopped
}

// Shutdown runs the exit hook: open multipart sessions are aborted, the transfer manager is
// shut down and the driver released. Only the first call to Shutdown or a completed Retire
// does any work.
func (b *Bundle) Shutdown(ctx context.Context) error {
	return b.stop(ctx, true)
}

func (b *Bundle) stop(ctx context.Context, abortSessions bool) error {
	b.shutdown.Do(func() {
		defer close(b.stopped)
		b.mu.Lock()
		b.closed = true
		tm := b.manager
		b.mu.Unlock()

		var errs []error
		if abortSessions {
			if n, aerr := b.tracker.AbortActive(ctx); n > 0 {
				b.logger.Warn("Aborted open multipart sessions", "count", n, "error", aerr)
				errs = append(errs, aerr)
			}
		}
		if tm != nil {
			b.logger.Info("Shutting down transfer manager")
			errs = append(errs, tm.Shutdown(ctx))
		}
		if b.closeFn != nil {
			errs = append(errs, b.closeFn(ctx))
		}
		b.stopErr = errors.Join(errs...)
	})
	return b.stopErr
}

// handleOptions returns the multipart handle options for one object path.
func (b *Bundle) handleOptions(path string, opts backend.WriteOptions, observer multipart.Observer) multipart.Options {
	bucket, key := storage.SplitPath(path)
	o := multipart.Options{
		Scheme:         b.Scheme,
		Bucket:         bucket,
		Key:            key,
		BlockSize:      b.Config.WriteChunkSize(),
		PartMax:        b.Config.PartMaxSize(),
		LargeThreshold: b.Config.LargeObjectThreshold(),
		Write:          opts,
		Invalidate:     b.Caps.InvalidateCache,
		Tracker:        b.tracker,
		Observer:       observer,
		Logger:         b.handleLogger,
	}
	if b.newManager != nil {
		o.Manager = b.TransferManager
	}
	return o
}

// bindCreate routes write handles of object-store families through the multipart state
// machine.
func (b *Bundle) bindCreate(observer multipart.Observer) {
	if b.Native == nil {
		return
	}
	native := b.Native
	b.Caps.Create = func(ctx context.Context, path string, opts backend.WriteOptions) (backend.WriteHandle, error) {
		o := b.handleOptions(path, opts, observer)
		o.OnDone, _ = b.Acquire()
		return multipart.NewHandle(ctx, native, o), nil
	}
	b.Caps.MarkBound(backend.OpCreate, "multipart")
}
