package accessor

import (
	"context"
	"io"
	"time"

	"github.com/objectfs/cloudpath/internal/async"
	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// Go starts fn for target on its own goroutine. Targets on the file scheme fail fast with
// UnsupportedOperation: local work is offloaded by the caller instead.
func Go[T any](ctx context.Context, op backend.Op, target any, fn func(context.Context) (T, error)) *async.Future[T] {
	u, err := Parse(target)
	if err != nil {
		return async.Failed[T](err)
	}
	if u.IsLocal() {
		return async.Failed[T](errors.UnsupportedOperation(u.Scheme(), string(op)+"_async", nil).
			WithPath(u.Scheme(), u.Native()))
	}
	return async.Go(ctx, fn)
}

func none(err error) (struct{}, error) { return struct{}{}, err }

func (a *Accessor) StatAsync(ctx context.Context, target any) *async.Future[types.FileInfo] {
	return Go(ctx, backend.OpStat, target, func(ctx context.Context) (types.FileInfo, error) {
		return a.Stat(ctx, target)
	})
}

func (a *Accessor) InfoAsync(ctx context.Context, target any) *async.Future[types.FileInfo] {
	return Go(ctx, backend.OpInfo, target, func(ctx context.Context) (types.FileInfo, error) {
		return a.Info(ctx, target)
	})
}

func (a *Accessor) SizeAsync(ctx context.Context, target any) *async.Future[int64] {
	return Go(ctx, backend.OpSize, target, func(ctx context.Context) (int64, error) {
		return a.Size(ctx, target)
	})
}

func (a *Accessor) ExistsAsync(ctx context.Context, target any) *async.Future[bool] {
	return Go(ctx, backend.OpExists, target, func(ctx context.Context) (bool, error) {
		return a.Exists(ctx, target)
	})
}

func (a *Accessor) IsDirAsync(ctx context.Context, target any) *async.Future[bool] {
	return Go(ctx, backend.OpIsDir, target, func(ctx context.Context) (bool, error) {
		return a.IsDir(ctx, target)
	})
}

func (a *Accessor) IsFileAsync(ctx context.Context, target any) *async.Future[bool] {
	return Go(ctx, backend.OpIsFile, target, func(ctx context.Context) (bool, error) {
		return a.IsFile(ctx, target)
	})
}

func (a *Accessor) ModifiedAsync(ctx context.Context, target any) *async.Future[time.Time] {
	return Go(ctx, backend.OpModified, target, func(ctx context.Context) (time.Time, error) {
		return a.Modified(ctx, target)
	})
}

func (a *Accessor) ListAsync(ctx context.Context, target any) *async.Future[[]types.FileInfo] {
	return Go(ctx, backend.OpList, target, func(ctx context.Context) ([]types.FileInfo, error) {
		return a.List(ctx, target)
	})
}

func (a *Accessor) GlobAsync(ctx context.Context, pattern any) *async.Future[[]string] {
	return Go(ctx, backend.OpGlob, pattern, func(ctx context.Context) ([]string, error) {
		return a.Glob(ctx, pattern)
	})
}

func (a *Accessor) FindAsync(ctx context.Context, target any) *async.Future[[]types.FileInfo] {
	return Go(ctx, backend.OpFind, target, func(ctx context.Context) ([]types.FileInfo, error) {
		return a.Find(ctx, target)
	})
}

// OpenAsync opens a streamed reader.
func (a *Accessor) OpenAsync(ctx context.Context, target any) *async.Future[io.ReadCloser] {
	return Go(ctx, backend.OpOpen, target, func(ctx context.Context) (io.ReadCloser, error) {
		return a.Open(ctx, target)
	})
}

func (a *Accessor) CatFileAsync(ctx context.Context, target any) *async.Future[[]byte] {
	return Go(ctx, backend.OpCatFile, target, func(ctx context.Context) ([]byte, error) {
		return a.CatFile(ctx, target)
	})
}

func (a *Accessor) PipeFileAsync(ctx context.Context, target any, data []byte, opts backend.WriteOptions) *async.Future[struct{}] {
	return Go(ctx, backend.OpPipeFile, target, func(ctx context.Context) (struct{}, error) {
		return none(a.PipeFile(ctx, target, data, opts))
	})
}

func (a *Accessor) CopyAsync(ctx context.Context, src, dst any) *async.Future[struct{}] {
	return Go(ctx, backend.OpCopy, src, func(ctx context.Context) (struct{}, error) {
		return none(a.Copy(ctx, src, dst))
	})
}

func (a *Accessor) GetFileAsync(ctx context.Context, target any, local string) *async.Future[struct{}] {
	return Go(ctx, backend.OpGetFile, target, func(ctx context.Context) (struct{}, error) {
		return none(a.GetFile(ctx, target, local))
	})
}

func (a *Accessor) PutFileAsync(ctx context.Context, local string, target any, opts backend.WriteOptions) *async.Future[struct{}] {
	return Go(ctx, backend.OpPutFile, target, func(ctx context.Context) (struct{}, error) {
		return none(a.PutFile(ctx, local, target, opts))
	})
}

func (a *Accessor) RemoveFileAsync(ctx context.Context, target any) *async.Future[struct{}] {
	return Go(ctx, backend.OpRemoveFile, target, func(ctx context.Context) (struct{}, error) {
		return none(a.RemoveFile(ctx, target))
	})
}

func (a *Accessor) RemoveAllAsync(ctx context.Context, target any) *async.Future[struct{}] {
	return Go(ctx, backend.OpRemoveAll, target, func(ctx context.Context) (struct{}, error) {
		return none(a.RemoveAll(ctx, target))
	})
}

func (a *Accessor) RmdirAsync(ctx context.Context, target any) *async.Future[struct{}] {
	return Go(ctx, backend.OpRmdir, target, func(ctx context.Context) (struct{}, error) {
		return none(a.Rmdir(ctx, target))
	})
}

func (a *Accessor) MkdirAsync(ctx context.Context, target any) *async.Future[struct{}] {
	return Go(ctx, backend.OpMkdir, target, func(ctx context.Context) (struct{}, error) {
		return none(a.Mkdir(ctx, target))
	})
}

func (a *Accessor) TouchAsync(ctx context.Context, target any) *async.Future[struct{}] {
	return Go(ctx, backend.OpTouch, target, func(ctx context.Context) (struct{}, error) {
		return none(a.Touch(ctx, target))
	})
}

func (a *Accessor) RenameAsync(ctx context.Context, src, dst any) *async.Future[struct{}] {
	return Go(ctx, backend.OpRename, src, func(ctx context.Context) (struct{}, error) {
		return none(a.Rename(ctx, src, dst))
	})
}

func (a *Accessor) ChecksumAsync(ctx context.Context, target any, algorithm string) *async.Future[string] {
	return Go(ctx, backend.OpChecksum, target, func(ctx context.Context) (string, error) {
		return a.Checksum(ctx, target, algorithm)
	})
}

func (a *Accessor) URLAsync(ctx context.Context, target any, expiry time.Duration) *async.Future[string] {
	return Go(ctx, backend.OpURL, target, func(ctx context.Context) (string, error) {
		return a.URL(ctx, target, expiry)
	})
}

func (a *Accessor) SetXattrAsync(ctx context.Context, target any, attrs map[string]string) *async.Future[struct{}] {
	return Go(ctx, backend.OpSetXattr, target, func(ctx context.Context) (struct{}, error) {
		return none(a.SetXattr(ctx, target, attrs))
	})
}
