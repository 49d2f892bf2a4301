// Package backend defines the driver contract of cloudpath.
//
// A driver is any value implementing some of the one-method interfaces below. The catalog
// maps every operation to an ordered list of aliases; Resolve binds each operation to the
// first alias the driver satisfies, once, producing a Capabilities value.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/objectfs/cloudpath/pkg/types"
)

// WriteOptions carries per-write object attributes.
type WriteOptions struct {
	ContentType  string
	StorageClass string
	Metadata     map[string]string
	// SizeHint is the expected total size, or types.UnknownSize.
	SizeHint int64
}

// WriteHandle is an open file in write mode. Close commits, Abort discards.
type WriteHandle interface {
	io.WriteCloser
	Abort() error
}

// WalkFunc is called for every entry below the walk root, parents before children.
// Returning fs.SkipDir from a directory entry skips its contents.
type WalkFunc func(info types.FileInfo) error

type Stater interface {
	Stat(ctx context.Context, path string) (types.FileInfo, error)
}

type Infoer interface {
	Info(ctx context.Context, path string) (types.FileInfo, error)
}

type Exister interface {
	Exists(ctx context.Context, path string) (bool, error)
}

type DirChecker interface {
	IsDir(ctx context.Context, path string) (bool, error)
}

type FileChecker interface {
	IsFile(ctx context.Context, path string) (bool, error)
}

type Sizer interface {
	Size(ctx context.Context, path string) (int64, error)
}

type Modifier interface {
	Modified(ctx context.Context, path string) (time.Time, error)
}

type Lister interface {
	List(ctx context.Context, path string) ([]types.FileInfo, error)
}

type DirReader interface {
	ReadDir(ctx context.Context, path string) ([]types.FileInfo, error)
}

type Globber interface {
	Glob(ctx context.Context, pattern string) ([]string, error)
}

type Finder interface {
	Find(ctx context.Context, path string) ([]types.FileInfo, error)
}

type Walker interface {
	Walk(ctx context.Context, path string, fn WalkFunc) error
}

type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type RangeOpener interface {
	OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
}

type Creator interface {
	Create(ctx context.Context, path string, opts WriteOptions) (WriteHandle, error)
}

type Catter interface {
	CatFile(ctx context.Context, path string) ([]byte, error)
}

type Piper interface {
	PipeFile(ctx context.Context, path string, data []byte, opts WriteOptions) error
}

type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}

type Getter interface {
	GetFile(ctx context.Context, remote, local string) error
}

type Putter interface {
	PutFile(ctx context.Context, local, remote string, opts WriteOptions) error
}

type FileRemover interface {
	RemoveFile(ctx context.Context, path string) error
}

type Remover interface {
	Remove(ctx context.Context, path string) error
}

type RecursiveRemover interface {
	RemoveAll(ctx context.Context, path string) error
}

type DirRemover interface {
	Rmdir(ctx context.Context, path string) error
}

type DirMaker interface {
	Mkdir(ctx context.Context, path string) error
}

type TreeMaker interface {
	MkdirAll(ctx context.Context, path string) error
}

type Makedirser interface {
	Makedirs(ctx context.Context, path string) error
}

type Toucher interface {
	Touch(ctx context.Context, path string) error
}

type Renamer interface {
	Rename(ctx context.Context, src, dst string) error
}

type Mover interface {
	Move(ctx context.Context, src, dst string) error
}

type Checksummer interface {
	Checksum(ctx context.Context, path, algorithm string) (string, error)
}

type Signer interface {
	Sign(ctx context.Context, path string, expiry time.Duration) (string, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, path string, expiry time.Duration) (string, error)
}

type XattrSetter interface {
	SetXattr(ctx context.Context, path string, attrs map[string]string) error
}

type MetadataSetter interface {
	SetMetadata(ctx context.Context, path string, metadata map[string]string) error
}

type CacheInvalidator interface {
	InvalidateCache(path string)
}
