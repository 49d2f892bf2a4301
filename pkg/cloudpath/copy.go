package cloudpath

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/objectfs/cloudpath/internal/chunk"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
	"github.com/objectfs/cloudpath/pkg/utils"
)

// Copy copies p to dst. Within one scheme the backend copies server-side; across schemes the
// bytes stream through the process as in CopyTo. An existing dst fails with
// DestinationExists unless Overwrite(true) is given.
func (p Path) Copy(ctx context.Context, dst Path, opts ...WriteOption) error {
	if p.u.Scheme() != dst.u.Scheme() {
		return p.CopyTo(ctx, dst, opts...)
	}
	o := newWriteOptions(opts)
	if err := dst.guard(ctx, o.allowOverwrite(false)); err != nil {
		return err
	}
	return p.fs.access.Copy(ctx, p.u, dst.u)
}

// CopyTo streams the content of p into dst, which may live on another backend. Ranged
// reads of p run concurrently when the policy selects the chunk engine; large copies into a
// store with a transfer manager are handed to it. Other copies into an object store go
// through a Create handle and hold the full object in memory until commit.
func (p Path) CopyTo(ctx context.Context, dst Path, opts ...WriteOption) error {
	o := newWriteOptions(opts)
	if err := dst.guard(ctx, o.allowOverwrite(false)); err != nil {
		return err
	}
	start := time.Now()
	size, err := p.Size(ctx)
	if err != nil {
		return err
	}
	o.write.SizeHint = size

	plan, b, release, err := dst.fs.plan(ctx, dst.u, size, types.DirectionCopy)
	if err != nil {
		return err
	}
	defer release()
	src, err := p.openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	if plan.Strategy == chunk.StrategyManager {
		err = dst.upload(ctx, b, src, size, o.write)
	} else {
		err = dst.writeHandle(ctx, plan, src, o.write)
	}
	if err != nil {
		return err
	}
	p.fs.metrics.RecordTransfer(dst.u.Scheme(), types.DirectionCopy, size, time.Since(start))
	p.fs.logger.Debug("Copied", "src", p.String(), "dst", dst.String(), "bytes", size,
		"strategy", plan.Strategy)
	return nil
}

// Move moves p to dst. Within one scheme the backend renames; across schemes p is copied and
// then removed.
func (p Path) Move(ctx context.Context, dst Path, opts ...WriteOption) error {
	o := newWriteOptions(opts)
	if err := dst.guard(ctx, o.allowOverwrite(false)); err != nil {
		return err
	}
	if p.u.Scheme() == dst.u.Scheme() {
		return p.fs.access.Rename(ctx, p.u, dst.u)
	}
	if err := p.CopyTo(ctx, dst, Overwrite(true)); err != nil {
		return err
	}
	return p.Remove(ctx)
}

// Rename is Move with the destination given as a sibling name or a full path string.
func (p Path) Rename(ctx context.Context, target string, opts ...WriteOption) (Path, error) {
	dst, err := p.fs.Path(target)
	if err != nil {
		return Path{}, err
	}
	if !strings.ContainsAny(target, "/"+string(filepath.Separator)) {
		dst, err = p.WithName(target)
		if err != nil {
			return Path{}, err
		}
	}
	if err := p.Move(ctx, dst, opts...); err != nil {
		return Path{}, err
	}
	return dst, nil
}

// Remove deletes the file at p.
func (p Path) Remove(ctx context.Context) error {
	return p.fs.access.RemoveFile(ctx, p.u)
}

// RemoveAll deletes p and everything below it.
func (p Path) RemoveAll(ctx context.Context) error {
	return p.fs.access.RemoveAll(ctx, p.u)
}

// Rmdir deletes the empty directory p.
func (p Path) Rmdir(ctx context.Context) error {
	return p.fs.access.Rmdir(ctx, p.u)
}

// Mkdir creates the directory p. Object stores create the bucket when p is one and
// otherwise have nothing to do.
func (p Path) Mkdir(ctx context.Context) error {
	return p.fs.access.Mkdir(ctx, p.u)
}

// MakeDirs creates p and any missing parents. Stores without directory trees fall back to
// Mkdir.
func (p Path) MakeDirs(ctx context.Context) error {
	err := p.fs.access.Makedirs(ctx, p.u)
	if errors.HasCode(err, errors.ErrCodeUnsupportedOperation) && !p.u.IsLocal() {
		return p.Mkdir(ctx)
	}
	return err
}

// MakeBucket creates the bucket of p through the native client of its store.
func (p Path) MakeBucket(ctx context.Context) error {
	if p.u.IsLocal() {
		return errors.UnsupportedOperation(p.u.Scheme(), "make_bucket", nil)
	}
	b, err := p.fs.access.Bundle(ctx, p.u)
	if err != nil {
		return err
	}
	if b.Native == nil {
		return errors.UnsupportedOperation(p.u.Scheme(), "make_bucket", nil)
	}
	return b.Native.MakeBucket(ctx, p.u.Bucket())
}

// Touch creates an empty file at p, or updates the modification time of an existing one.
func (p Path) Touch(ctx context.Context) error {
	return p.fs.access.Touch(ctx, p.u)
}

// Localize downloads p to dir/bucket/key and returns the local path. Local paths are
// returned unchanged. An existing local file fails with DestinationExists unless
// Overwrite(true) is given.
func (p Path) Localize(ctx context.Context, dir string, opts ...WriteOption) (Path, error) {
	if p.u.IsLocal() {
		return p, nil
	}
	target, err := utils.LocalTarget(dir, p.u.Native())
	if err != nil {
		return Path{}, errors.PathInvalid(p.String(), err.Error())
	}
	dst := p.fs.Local(target)
	o := newWriteOptions(opts)
	if err := dst.guard(ctx, o.allowOverwrite(false)); err != nil {
		return Path{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Path{}, errors.TransferFailure(dst.Scheme(), target, "localize", err)
	}

	size, err := p.Size(ctx)
	if err != nil {
		return Path{}, err
	}
	plan, b, release, err := p.fs.plan(ctx, p.u, size, types.DirectionRead)
	if err != nil {
		return Path{}, err
	}
	defer release()
	if plan.Strategy == chunk.StrategyManager {
		if err := p.downloadFile(ctx, b, target); err != nil {
			return Path{}, err
		}
		return dst, nil
	}
	if err := p.CopyTo(ctx, dst, Overwrite(true)); err != nil {
		return Path{}, err
	}
	return dst, nil
}
