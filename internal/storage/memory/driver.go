package memory

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/storage"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// Driver exposes a Store through the backend capability interfaces. Paths are
// "bucket/key".
type Driver struct {
	store  *Store
	scheme string
}

// NewDriver returns a driver over store reporting errors under scheme.
func NewDriver(store *Store, scheme string) *Driver {
	return &Driver{store: store, scheme: scheme}
}

func (d *Driver) notFound(path string) error {
	return errors.NotFound(d.scheme, path, nil)
}

func fileInfo(bucket, key string, o *object) types.FileInfo {
	md := make(map[string]string, len(o.metadata))
	for k, v := range o.metadata {
		md[k] = v
	}
	return types.FileInfo{
		Name:         storage.JoinPath(bucket, key),
		Size:         int64(len(o.data)),
		LastModified: o.modTime,
		ETag:         o.etag,
		ContentType:  o.contentType,
		StorageClass: o.storageClass,
		Metadata:     md,
	}
}

func dirInfo(name string, mod time.Time) types.FileInfo {
	return types.FileInfo{Name: name, IsDir: true, LastModified: mod}
}

// isDirLocked reports whether key is a directory of b: a marker or a prefix of an object.
func isDirLocked(b *memBucket, key string) bool {
	if _, ok := b.dirs[key]; ok {
		return true
	}
	prefix := storage.DirPrefix(key)
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	for k := range b.dirs {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func (d *Driver) lookup(path string) (*object, types.FileInfo, error) {
	bucket, key := storage.SplitPath(path)
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()

	if bucket == "" {
		return nil, dirInfo("", time.Time{}), nil
	}
	b := d.store.buckets[bucket]
	if b == nil {
		return nil, types.FileInfo{}, d.notFound(path)
	}
	if key == "" {
		return nil, dirInfo(bucket, b.created), nil
	}
	if o, ok := b.objects[key]; ok {
		return o, fileInfo(bucket, key, o), nil
	}
	if isDirLocked(b, key) {
		return nil, dirInfo(storage.JoinPath(bucket, key), b.dirs[key]), nil
	}
	return nil, types.FileInfo{}, d.notFound(path)
}

// Stat returns the metadata of an object, bucket or directory.
func (d *Driver) Stat(_ context.Context, path string) (types.FileInfo, error) {
	_, fi, err := d.lookup(path)
	return fi, err
}

// List returns the immediate children of a directory, or the object itself.
func (d *Driver) List(_ context.Context, path string) ([]types.FileInfo, error) {
	bucket, key := storage.SplitPath(path)
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()

	if bucket == "" {
		out := make([]types.FileInfo, 0, len(d.store.buckets))
		for name, b := range d.store.buckets {
			out = append(out, dirInfo(name, b.created))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	b := d.store.buckets[bucket]
	if b == nil {
		return nil, d.notFound(path)
	}
	if o, ok := b.objects[key]; ok && key != "" {
		return []types.FileInfo{fileInfo(bucket, key, o)}, nil
	}
	if key != "" && !isDirLocked(b, key) {
		return nil, d.notFound(path)
	}

	prefix := storage.DirPrefix(key)
	seen := map[string]bool{}
	var out []types.FileInfo
	for k, o := range b.objects {
		name, isDir, ok := storage.ChildOf(prefix, k)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		full := storage.JoinPath(bucket, prefix+name)
		if isDir {
			out = append(out, dirInfo(full, b.dirs[prefix+name]))
		} else {
			out = append(out, fileInfo(bucket, k, o))
		}
	}
	for k, mod := range b.dirs {
		name, _, ok := storage.ChildOf(prefix, k)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, dirInfo(storage.JoinPath(bucket, prefix+name), mod))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type objectReader struct {
	*bytes.Reader
}

func (objectReader) Close() error { return nil }

// Open returns a reader over a snapshot of the object. It implements io.ReaderAt.
func (d *Driver) Open(_ context.Context, path string) (io.ReadCloser, error) {
	o, fi, err := d.lookup(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir {
		return nil, errors.PathInvalid(path, "is a directory")
	}
	d.store.Stats.Reads.Add(1)
	return objectReader{bytes.NewReader(o.data)}, nil
}

// OpenRange returns length bytes from offset. A negative length reads to the end.
func (d *Driver) OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	o, fi, err := d.lookup(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir {
		return nil, errors.PathInvalid(path, "is a directory")
	}
	size := int64(len(o.data))
	if offset > size {
		offset = size
	}
	end := size
	if length >= 0 && offset+length < size {
		end = offset + length
	}
	d.store.Stats.Reads.Add(1)
	return objectReader{bytes.NewReader(o.data[offset:end])}, nil
}

// CatFile returns the object bytes.
func (d *Driver) CatFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := d.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// PipeFile stores data in one put.
func (d *Driver) PipeFile(ctx context.Context, path string, data []byte, opts backend.WriteOptions) error {
	bucket, key := storage.SplitPath(path)
	if key == "" {
		return errors.PathInvalid(path, "object key required")
	}
	return d.store.PutObject(ctx, bucket, key, data, opts)
}

// PutFile uploads a local file.
func (d *Driver) PutFile(ctx context.Context, local, remote string, opts backend.WriteOptions) error {
	data, err := os.ReadFile(local)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("file", local, err)
		}
		return errors.TransferFailure("file", local, "put_file", err)
	}
	return d.PipeFile(ctx, remote, data, opts)
}

// Copy duplicates an object server side.
func (d *Driver) Copy(_ context.Context, src, dst string) error {
	sb, sk := storage.SplitPath(src)
	db, dk := storage.SplitPath(dst)
	if dk == "" {
		return errors.PathInvalid(dst, "object key required")
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.buckets[sb]
	if b == nil || b.objects[sk] == nil {
		return d.notFound(src)
	}
	o := *b.objects[sk]
	o.modTime = time.Now()
	d.store.bucketLocked(db, true).objects[dk] = &o
	d.store.Stats.Puts.Add(1)
	return nil
}

// RemoveFile deletes one object.
func (d *Driver) RemoveFile(_ context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.buckets[bucket]
	if b == nil || b.objects[key] == nil {
		return d.notFound(path)
	}
	delete(b.objects, key)
	return nil
}

// RemoveAll deletes an object or a whole directory. Removing a bucket path drops the bucket.
func (d *Driver) RemoveAll(_ context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.buckets[bucket]
	if b == nil {
		return d.notFound(path)
	}
	if key == "" {
		delete(d.store.buckets, bucket)
		return nil
	}

	removed := 0
	if _, ok := b.objects[key]; ok {
		delete(b.objects, key)
		removed++
	}
	prefix := storage.DirPrefix(key)
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.objects, k)
			removed++
		}
	}
	for k := range b.dirs {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(b.dirs, k)
			removed++
		}
	}
	if removed == 0 {
		return d.notFound(path)
	}
	return nil
}

// Rmdir deletes an empty directory or bucket.
func (d *Driver) Rmdir(_ context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.buckets[bucket]
	if b == nil {
		return d.notFound(path)
	}

	prefix := storage.DirPrefix(key)
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			return errors.PathInvalid(path, "directory not empty")
		}
	}
	for k := range b.dirs {
		if k != key && strings.HasPrefix(k, prefix) {
			return errors.PathInvalid(path, "directory not empty")
		}
	}

	if key == "" {
		delete(d.store.buckets, bucket)
		return nil
	}
	if _, ok := b.dirs[key]; !ok {
		return d.notFound(path)
	}
	delete(b.dirs, key)
	return nil
}

// Mkdir creates a bucket, or a directory marker inside one.
func (d *Driver) Mkdir(_ context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return errors.PathInvalid(path, "bucket required")
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.bucketLocked(bucket, true)
	if key != "" {
		if _, ok := b.objects[key]; ok {
			return errors.DestinationExists(d.scheme, path)
		}
		b.dirs[key] = time.Now()
	}
	return nil
}

// Touch creates an empty object, or refreshes the modification time of an existing one.
func (d *Driver) Touch(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if key == "" {
		return errors.PathInvalid(path, "object key required")
	}
	d.store.mu.Lock()
	if b := d.store.buckets[bucket]; b != nil {
		if o, ok := b.objects[key]; ok {
			touched := *o
			touched.modTime = time.Now()
			b.objects[key] = &touched
			d.store.mu.Unlock()
			return nil
		}
	}
	d.store.mu.Unlock()
	return d.store.PutObject(ctx, bucket, key, nil, backend.WriteOptions{})
}

// Rename moves an object, or every object below a directory.
func (d *Driver) Rename(_ context.Context, src, dst string) error {
	sb, sk := storage.SplitPath(src)
	db, dk := storage.SplitPath(dst)

	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	from := d.store.buckets[sb]
	if from == nil {
		return d.notFound(src)
	}
	if o, ok := from.objects[sk]; ok && sk != "" {
		if dk == "" {
			return errors.PathInvalid(dst, "object key required")
		}
		d.store.bucketLocked(db, true).objects[dk] = o
		delete(from.objects, sk)
		return nil
	}

	prefix := storage.DirPrefix(sk)
	moved := 0
	to := d.store.bucketLocked(db, true)
	for k, o := range from.objects {
		if strings.HasPrefix(k, prefix) {
			to.objects[storage.DirPrefix(dk)+k[len(prefix):]] = o
			delete(from.objects, k)
			moved++
		}
	}
	if moved == 0 {
		return d.notFound(src)
	}
	return nil
}

// Checksum hashes the object bytes.
func (d *Driver) Checksum(_ context.Context, path, algorithm string) (string, error) {
	o, fi, err := d.lookup(path)
	if err != nil {
		return "", err
	}
	if fi.IsDir {
		return "", errors.PathInvalid(path, "is a directory")
	}
	h, err := backend.NewHash(algorithm)
	if err != nil {
		return "", errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(d.scheme, path)
	}
	h.Write(o.data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sign returns a pseudo URL carrying the expiry.
func (d *Driver) Sign(_ context.Context, path string, expiry time.Duration) (string, error) {
	if _, _, err := d.lookup(path); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s?expires=%d", d.scheme, strings.Trim(path, "/"), time.Now().Add(expiry).Unix()), nil
}

// SetMetadata merges user metadata into an object.
func (d *Driver) SetMetadata(_ context.Context, path string, metadata map[string]string) error {
	bucket, key := storage.SplitPath(path)
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	b := d.store.buckets[bucket]
	if b == nil || b.objects[key] == nil {
		return d.notFound(path)
	}
	o := *b.objects[key]
	o.metadata = make(map[string]string, len(b.objects[key].metadata)+len(metadata))
	for k, v := range b.objects[key].metadata {
		o.metadata[k] = v
	}
	for k, v := range metadata {
		o.metadata[k] = v
	}
	b.objects[key] = &o
	return nil
}
