package accessor

import (
	"context"
	"io"
	"time"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/pkg/types"
)

func (a *Accessor) Stat(ctx context.Context, target any) (types.FileInfo, error) {
	c, err := a.dispatch(ctx, backend.OpStat, target)
	if err != nil {
		return types.FileInfo{}, err
	}
	if c.caps.Stat == nil {
		return types.FileInfo{}, a.done(c, c.unsupported())
	}
	fi, err := c.caps.Stat(ctx, c.path())
	return fi, a.done(c, err)
}

func (a *Accessor) Info(ctx context.Context, target any) (types.FileInfo, error) {
	c, err := a.dispatch(ctx, backend.OpInfo, target)
	if err != nil {
		return types.FileInfo{}, err
	}
	if c.caps.Info == nil {
		return types.FileInfo{}, a.done(c, c.unsupported())
	}
	fi, err := c.caps.Info(ctx, c.path())
	return fi, a.done(c, err)
}

func (a *Accessor) Size(ctx context.Context, target any) (int64, error) {
	c, err := a.dispatch(ctx, backend.OpSize, target)
	if err != nil {
		return 0, err
	}
	if c.caps.Size == nil {
		return 0, a.done(c, c.unsupported())
	}
	n, err := c.caps.Size(ctx, c.path())
	return n, a.done(c, err)
}

func (a *Accessor) Exists(ctx context.Context, target any) (bool, error) {
	c, err := a.dispatch(ctx, backend.OpExists, target)
	if err != nil {
		return false, err
	}
	if c.caps.Exists == nil {
		return false, a.done(c, c.unsupported())
	}
	ok, err := c.caps.Exists(ctx, c.path())
	return ok, a.done(c, err)
}

func (a *Accessor) IsDir(ctx context.Context, target any) (bool, error) {
	c, err := a.dispatch(ctx, backend.OpIsDir, target)
	if err != nil {
		return false, err
	}
	if c.caps.IsDir == nil {
		return false, a.done(c, c.unsupported())
	}
	ok, err := c.caps.IsDir(ctx, c.path())
	return ok, a.done(c, err)
}

func (a *Accessor) IsFile(ctx context.Context, target any) (bool, error) {
	c, err := a.dispatch(ctx, backend.OpIsFile, target)
	if err != nil {
		return false, err
	}
	if c.caps.IsFile == nil {
		return false, a.done(c, c.unsupported())
	}
	ok, err := c.caps.IsFile(ctx, c.path())
	return ok, a.done(c, err)
}

func (a *Accessor) Modified(ctx context.Context, target any) (time.Time, error) {
	c, err := a.dispatch(ctx, backend.OpModified, target)
	if err != nil {
		return time.Time{}, err
	}
	if c.caps.Modified == nil {
		return time.Time{}, a.done(c, c.unsupported())
	}
	t, err := c.caps.Modified(ctx, c.path())
	return t, a.done(c, err)
}

// List returns the immediate children of a directory. Entry names are backend-native paths.
func (a *Accessor) List(ctx context.Context, target any) ([]types.FileInfo, error) {
	c, err := a.dispatch(ctx, backend.OpList, target)
	if err != nil {
		return nil, err
	}
	if c.caps.List == nil {
		return nil, a.done(c, c.unsupported())
	}
	entries, err := c.caps.List(ctx, c.path())
	return entries, a.done(c, err)
}

// Glob returns the backend-native paths matching a pattern URI.
func (a *Accessor) Glob(ctx context.Context, pattern any) ([]string, error) {
	c, err := a.dispatch(ctx, backend.OpGlob, pattern)
	if err != nil {
		return nil, err
	}
	if c.caps.Glob == nil {
		return nil, a.done(c, c.unsupported())
	}
	matches, err := c.caps.Glob(ctx, c.path())
	return matches, a.done(c, err)
}

// Find returns every file below target, recursively.
func (a *Accessor) Find(ctx context.Context, target any) ([]types.FileInfo, error) {
	c, err := a.dispatch(ctx, backend.OpFind, target)
	if err != nil {
		return nil, err
	}
	if c.caps.Find == nil {
		return nil, a.done(c, c.unsupported())
	}
	entries, err := c.caps.Find(ctx, c.path())
	return entries, a.done(c, err)
}

func (a *Accessor) Walk(ctx context.Context, target any, fn backend.WalkFunc) error {
	c, err := a.dispatch(ctx, backend.OpWalk, target)
	if err != nil {
		return err
	}
	if c.caps.Walk == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.Walk(ctx, c.path(), fn))
}

func (a *Accessor) Open(ctx context.Context, target any) (io.ReadCloser, error) {
	c, err := a.dispatch(ctx, backend.OpOpen, target)
	if err != nil {
		return nil, err
	}
	if c.caps.Open == nil {
		return nil, a.done(c, c.unsupported())
	}
	rc, err := c.caps.Open(ctx, c.path())
	return rc, a.done(c, err)
}

// OpenRange opens length bytes at offset. A negative length reads to the end.
func (a *Accessor) OpenRange(ctx context.Context, target any, offset, length int64) (io.ReadCloser, error) {
	c, err := a.dispatch(ctx, backend.OpOpenRange, target)
	if err != nil {
		return nil, err
	}
	if c.caps.OpenRange == nil {
		return nil, a.done(c, c.unsupported())
	}
	rc, err := c.caps.OpenRange(ctx, c.path(), offset, length)
	return rc, a.done(c, err)
}

// Create opens a write handle. Object stores hand out multipart handles.
func (a *Accessor) Create(ctx context.Context, target any, opts backend.WriteOptions) (backend.WriteHandle, error) {
	c, err := a.dispatch(ctx, backend.OpCreate, target)
	if err != nil {
		return nil, err
	}
	if c.caps.Create == nil {
		return nil, a.done(c, c.unsupported())
	}
	h, err := c.caps.Create(ctx, c.path(), opts)
	return h, a.done(c, err)
}

func (a *Accessor) CatFile(ctx context.Context, target any) ([]byte, error) {
	c, err := a.dispatch(ctx, backend.OpCatFile, target)
	if err != nil {
		return nil, err
	}
	if c.caps.CatFile == nil {
		return nil, a.done(c, c.unsupported())
	}
	data, err := c.caps.CatFile(ctx, c.path())
	return data, a.done(c, err)
}

func (a *Accessor) PipeFile(ctx context.Context, target any, data []byte, opts backend.WriteOptions) error {
	c, err := a.dispatch(ctx, backend.OpPipeFile, target)
	if err != nil {
		return err
	}
	if c.caps.PipeFile == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.PipeFile(ctx, c.path(), data, opts))
}

// Copy copies within one scheme on the backend side.
func (a *Accessor) Copy(ctx context.Context, src, dst any) error {
	c, d, err := a.pair(ctx, backend.OpCopy, src, dst)
	if err != nil {
		return err
	}
	if c.caps.Copy == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.Copy(ctx, c.path(), d.Native()))
}

// GetFile downloads target to the local file at local.
func (a *Accessor) GetFile(ctx context.Context, target any, local string) error {
	c, err := a.dispatch(ctx, backend.OpGetFile, target)
	if err != nil {
		return err
	}
	if c.caps.GetFile == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.GetFile(ctx, c.path(), local))
}

// PutFile uploads the local file at local to target.
func (a *Accessor) PutFile(ctx context.Context, local string, target any, opts backend.WriteOptions) error {
	c, err := a.dispatch(ctx, backend.OpPutFile, target)
	if err != nil {
		return err
	}
	if c.caps.PutFile == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.PutFile(ctx, local, c.path(), opts))
}

func (a *Accessor) RemoveFile(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpRemoveFile, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.RemoveFile
	})
}

// RemoveAll deletes target and everything below it.
func (a *Accessor) RemoveAll(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpRemoveAll, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.RemoveAll
	})
}

func (a *Accessor) Rmdir(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpRmdir, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.Rmdir
	})
}

func (a *Accessor) Mkdir(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpMkdir, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.Mkdir
	})
}

func (a *Accessor) Makedirs(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpMakedirs, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.Makedirs
	})
}

func (a *Accessor) Touch(ctx context.Context, target any) error {
	return a.pathOp(ctx, backend.OpTouch, target, func(caps *backend.Capabilities) func(context.Context, string) error {
		return caps.Touch
	})
}

func (a *Accessor) pathOp(ctx context.Context, op backend.Op, target any,
	pick func(*backend.Capabilities) func(context.Context, string) error) error {
	c, err := a.dispatch(ctx, op, target)
	if err != nil {
		return err
	}
	fn := pick(c.caps)
	if fn == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, fn(ctx, c.path()))
}

// Rename moves src to dst within one scheme.
func (a *Accessor) Rename(ctx context.Context, src, dst any) error {
	c, d, err := a.pair(ctx, backend.OpRename, src, dst)
	if err != nil {
		return err
	}
	if c.caps.Rename == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.Rename(ctx, c.path(), d.Native()))
}

// Checksum hashes the object with algorithm ("" is md5).
func (a *Accessor) Checksum(ctx context.Context, target any, algorithm string) (string, error) {
	c, err := a.dispatch(ctx, backend.OpChecksum, target)
	if err != nil {
		return "", err
	}
	if c.caps.Checksum == nil {
		return "", a.done(c, c.unsupported())
	}
	sum, err := c.caps.Checksum(ctx, c.path(), algorithm)
	return sum, a.done(c, err)
}

// URL returns a signed URL valid for expiry.
func (a *Accessor) URL(ctx context.Context, target any, expiry time.Duration) (string, error) {
	c, err := a.dispatch(ctx, backend.OpURL, target)
	if err != nil {
		return "", err
	}
	if c.caps.URL == nil {
		return "", a.done(c, c.unsupported())
	}
	u, err := c.caps.URL(ctx, c.path(), expiry)
	return u, a.done(c, err)
}

func (a *Accessor) SetXattr(ctx context.Context, target any, attrs map[string]string) error {
	c, err := a.dispatch(ctx, backend.OpSetXattr, target)
	if err != nil {
		return err
	}
	if c.caps.SetXattr == nil {
		return a.done(c, c.unsupported())
	}
	return a.done(c, c.caps.SetXattr(ctx, c.path(), attrs))
}

// InvalidateCache drops cached listings of target. Drivers without a listing cache ignore it.
func (a *Accessor) InvalidateCache(ctx context.Context, target any) error {
	c, err := a.dispatch(ctx, backend.OpInvalidateCache, target)
	if err != nil {
		return err
	}
	if c.caps.InvalidateCache != nil {
		c.caps.InvalidateCache(c.path())
	}
	return a.done(c, nil)
}
