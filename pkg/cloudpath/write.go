package cloudpath

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/chunk"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// guard fails with DestinationExists when p exists and overwriting is not allowed. It runs
// before any write.
func (p Path) guard(ctx context.Context, allow bool) error {
	if allow {
		return nil
	}
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return errors.DestinationExists(p.u.Scheme(), p.u.Native())
	}
	return nil
}

// WriteBytes replaces the content of p with data. Small payloads are written in one call,
// larger ones through a write handle fed by the chunk engine, or by the transfer manager
// when the policy selects it.
func (p Path) WriteBytes(ctx context.Context, data []byte, opts ...WriteOption) error {
	o := newWriteOptions(opts)
	if err := p.guard(ctx, o.allowOverwrite(true)); err != nil {
		return err
	}
	start := time.Now()
	size := int64(len(data))
	o.write.SizeHint = size

	plan, b, release, err := p.fs.plan(ctx, p.u, size, types.DirectionWrite)
	if err != nil {
		return err
	}
	defer release()

	switch plan.Strategy {
	case chunk.StrategyPlain:
		err = p.fs.access.PipeFile(ctx, p.u, data, o.write)
	case chunk.StrategyManager:
		err = p.upload(ctx, b, bytes.NewReader(data), size, o.write)
	default:
		err = p.writeHandle(ctx, plan, bytes.NewReader(data), o.write)
	}
	if err != nil {
		return err
	}
	p.fs.metrics.RecordTransfer(p.u.Scheme(), types.DirectionWrite, size, time.Since(start))
	return nil
}

// WriteText writes s as the content of p.
func (p Path) WriteText(ctx context.Context, s string, opts ...WriteOption) error {
	return p.WriteBytes(ctx, []byte(s), opts...)
}

// Create opens a write handle on p. Object stores return a multipart handle that buffers
// blocks, uploads parts and commits on Close; Abort discards the upload.
//
// An object-store handle retains every written byte until Close or Abort, so writing an
// object this way holds the whole object in memory. WriteBytes and CopyTo hand objects of
// known size at or above the provider's large_file_threshold to the transfer manager
// instead.
func (p Path) Create(ctx context.Context, opts ...WriteOption) (backend.WriteHandle, error) {
	o := newWriteOptions(opts)
	if err := p.guard(ctx, o.allowOverwrite(true)); err != nil {
		return nil, err
	}
	return p.fs.access.Create(ctx, p.u, o.write)
}

// writeHandle streams r into a write handle on p according to plan. A failed stream aborts
// the handle, so no partial object is published.
func (p Path) writeHandle(ctx context.Context, plan chunk.Plan, r io.Reader, opts backend.WriteOptions) error {
	h, err := p.fs.access.Create(ctx, p.u, opts)
	if err != nil {
		return err
	}
	if _, err := chunk.RunPlan(ctx, plan, r, h); err != nil {
		_ = h.Abort()
		return p.transferError("write", err)
	}
	if err := h.Close(); err != nil {
		return p.transferError("commit", err)
	}
	return nil
}

// upload hands r to the transfer manager of b.
func (p Path) upload(ctx context.Context, b *bundle.Bundle, r io.Reader, size int64, opts backend.WriteOptions) error {
	tm, err := b.TransferManager(ctx)
	if err != nil {
		return err
	}
	if tm == nil {
		return errors.UnsupportedOperation(p.u.Scheme(), "upload", nil).WithPath(p.u.Scheme(), p.u.Native())
	}
	if err := tm.Upload(ctx, p.u.Bucket(), p.u.Key(), r, size, opts); err != nil {
		return p.transferError("upload", err)
	}
	p.invalidateAncestors(ctx)
	return nil
}
