package cloudpath

import (
	"context"
	"time"

	"github.com/objectfs/cloudpath/pkg/types"
)

// Stat returns the file info of p. Missing paths fail with NotFound.
func (p Path) Stat(ctx context.Context) (types.FileInfo, error) {
	return p.fs.access.Stat(ctx, p.u)
}

// Info is Stat with backend-specific detail such as metadata.
func (p Path) Info(ctx context.Context) (types.FileInfo, error) {
	return p.fs.access.Info(ctx, p.u)
}

// Exists reports whether p is a file or a directory.
func (p Path) Exists(ctx context.Context) (bool, error) {
	return p.fs.access.Exists(ctx, p.u)
}

// IsDir reports whether p is a directory or a key prefix with children.
func (p Path) IsDir(ctx context.Context) (bool, error) {
	return p.fs.access.IsDir(ctx, p.u)
}

// IsFile reports whether p is a file or object.
func (p Path) IsFile(ctx context.Context) (bool, error) {
	return p.fs.access.IsFile(ctx, p.u)
}

// Size returns the content length in bytes.
func (p Path) Size(ctx context.Context) (int64, error) {
	return p.fs.access.Size(ctx, p.u)
}

// Modified returns the last modification time.
func (p Path) Modified(ctx context.Context) (time.Time, error) {
	return p.fs.access.Modified(ctx, p.u)
}

// Checksum returns the hex digest of the content. The algorithm is "md5" (the default
// when empty), "sha1" or "sha256".
func (p Path) Checksum(ctx context.Context, algorithm string) (string, error) {
	return p.fs.access.Checksum(ctx, p.u, algorithm)
}

// URL returns a pre-signed URL valid for expiry. Local paths yield a file:// URL.
func (p Path) URL(ctx context.Context, expiry time.Duration) (string, error) {
	return p.fs.access.URL(ctx, p.u, expiry)
}

// SetXattr sets user metadata on the object.
func (p Path) SetXattr(ctx context.Context, attrs map[string]string) error {
	return p.fs.access.SetXattr(ctx, p.u, attrs)
}

// InvalidateCache drops cached listings of p and its descendants.
func (p Path) InvalidateCache(ctx context.Context) error {
	return p.fs.access.InvalidateCache(ctx, p.u)
}

// invalidateAncestors drops the cached listings of every directory above p.
func (p Path) invalidateAncestors(ctx context.Context) {
	for _, a := range p.u.Ancestors() {
		_ = p.fs.access.InvalidateCache(ctx, a)
	}
}
