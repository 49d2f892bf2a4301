// Package minio is the MinIO backend family, served through minio-go.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/storage"
	"github.com/objectfs/cloudpath/internal/storage/dircache"
	cperrors "github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// Backend implements the MinIO driver. Paths are "bucket/key".
type Backend struct {
	client   *minio.Client
	core     *minio.Core
	config   *Config
	scheme   string
	listings *dircache.Cache
	logger   *slog.Logger
}

// NewBackend creates a backend reporting errors under scheme
func NewBackend(scheme string, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, core, err := newClient(cfg)
	if err != nil {
		return nil, cperrors.BackendUnavailable(scheme, err)
	}
	logger.Info("MinIO backend initialized",
		"scheme", scheme,
		"endpoint", cfg.Endpoint,
		"secure", cfg.Secure,
		"path_style", cfg.UsePathStyle)

	return &Backend{
		client:   client,
		core:     core,
		config:   cfg,
		scheme:   scheme,
		listings: dircache.New(cfg.ListingCacheSize, cfg.ListingCacheTTL),
		logger:   logger,
	}, nil
}

func (b *Backend) fail(err error, operation, path string) error {
	return translateError(err, b.scheme, operation, path)
}

func requireKey(path string) (bucket, key string, err error) {
	bucket, key = storage.SplitPath(path)
	if bucket == "" || key == "" {
		return "", "", cperrors.PathInvalid(path, "object key required")
	}
	return bucket, key, nil
}

func dirInfo(name string, mod time.Time) types.FileInfo {
	return types.FileInfo{Name: name, IsDir: true, LastModified: mod}
}

func objectInfo(bucket string, obj minio.ObjectInfo) types.FileInfo {
	var md map[string]string
	if len(obj.UserMetadata) > 0 {
		md = make(map[string]string, len(obj.UserMetadata))
		for k, v := range obj.UserMetadata {
			md[k] = v
		}
	}
	return types.FileInfo{
		Name:         storage.JoinPath(bucket, obj.Key),
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ETag:         strings.Trim(obj.ETag, `"`),
		ContentType:  obj.ContentType,
		StorageClass: obj.StorageClass,
		Metadata:     md,
	}
}

// Stat returns the metadata of an object, bucket or directory prefix
func (b *Backend) Stat(ctx context.Context, path string) (types.FileInfo, error) {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return dirInfo("", time.Time{}), nil
	}
	if key == "" {
		ok, err := b.client.BucketExists(ctx, bucket)
		if err != nil {
			return types.FileInfo{}, b.fail(err, "stat", path)
		}
		if !ok {
			return types.FileInfo{}, cperrors.NotFound(b.scheme, path, nil).WithOperation("stat")
		}
		return dirInfo(bucket, time.Time{}), nil
	}

	obj, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return objectInfo(bucket, obj), nil
	}
	if terr := b.fail(err, "stat", path); !cperrors.IsNotFound(terr) {
		return types.FileInfo{}, terr
	}

	// cancel stops the lister goroutine after the first entry
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for entry := range b.client.ListObjects(lctx, bucket, minio.ListObjectsOptions{
		Prefix:  storage.DirPrefix(key),
		MaxKeys: 1,
	}) {
		if entry.Err != nil {
			return types.FileInfo{}, b.fail(entry.Err, "stat", path)
		}
		return dirInfo(storage.JoinPath(bucket, key), time.Time{}), nil
	}
	return types.FileInfo{}, cperrors.NotFound(b.scheme, path, nil).WithOperation("stat")
}

// List returns the immediate children of a directory, or the object itself
func (b *Backend) List(ctx context.Context, path string) ([]types.FileInfo, error) {
	if cached, ok := b.listings.Get(path); ok {
		return cached, nil
	}

	bucket, key := storage.SplitPath(path)
	var entries []types.FileInfo
	if bucket == "" {
		buckets, err := b.client.ListBuckets(ctx)
		if err != nil {
			return nil, b.fail(err, "list", path)
		}
		for _, bkt := range buckets {
			entries = append(entries, dirInfo(bkt.Name, bkt.CreationDate))
		}
	} else {
		prefix := storage.DirPrefix(key)
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for obj := range b.client.ListObjects(lctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
			if obj.Err != nil {
				return nil, b.fail(obj.Err, "list", path)
			}
			switch {
			case obj.Key == prefix:
				// directory marker
			case strings.HasSuffix(obj.Key, "/"):
				entries = append(entries, dirInfo(storage.JoinPath(bucket, strings.TrimSuffix(obj.Key, "/")), time.Time{}))
			default:
				entries = append(entries, objectInfo(bucket, obj))
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if len(entries) == 0 && key != "" {
		fi, err := b.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir {
			return []types.FileInfo{fi}, nil
		}
	}
	b.listings.Put(path, entries)
	return entries, nil
}

// Open streams an object
func (b *Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return b.OpenRange(ctx, path, 0, -1)
}

// OpenRange streams length bytes from offset. A negative length reads to the end.
func (b *Backend) OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	bucket, key, err := requireKey(path)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	opts := minio.GetObjectOptions{}
	switch {
	case length > 0:
		err = opts.SetRange(offset, offset+length-1)
	case offset > 0:
		err = opts.SetRange(offset, 0)
	}
	if err != nil {
		return nil, cperrors.PathInvalid(path, err.Error())
	}

	obj, err := b.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, b.fail(err, "open", path)
	}
	// GetObject is lazy; Stat issues the request so missing objects fail here
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, b.fail(err, "open", path)
	}
	return obj, nil
}

// CatFile returns the whole object
func (b *Backend) CatFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := b.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, b.fail(err, "cat_file", path)
	}
	return data, nil
}

func (b *Backend) putOptions(opts backend.WriteOptions) minio.PutObjectOptions {
	class := opts.StorageClass
	if class == "" {
		class = b.config.StorageClass
	}
	return minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
		StorageClass: class,
	}
}

// PipeFile stores data in one put. The content type is sniffed when unset.
func (b *Backend) PipeFile(ctx context.Context, path string, data []byte, opts backend.WriteOptions) error {
	bucket, key, err := requireKey(path)
	if err != nil {
		return err
	}
	if opts.ContentType == "" {
		opts.ContentType = mimetype.Detect(data).String()
	}
	if err := b.PutObject(ctx, bucket, key, data, opts); err != nil {
		return b.fail(err, "pipe_file", path)
	}
	return nil
}

// PutFile uploads a local file
func (b *Backend) PutFile(ctx context.Context, local, remote string, opts backend.WriteOptions) error {
	bucket, key, err := requireKey(remote)
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); err != nil {
		if os.IsNotExist(err) {
			return cperrors.NotFound("file", local, err)
		}
		return cperrors.TransferFailure("file", local, "put_file", err)
	}
	if opts.ContentType == "" {
		if mt, err := mimetype.DetectFile(local); err == nil {
			opts.ContentType = mt.String()
		}
	}
	if _, err := b.client.FPutObject(ctx, bucket, key, local, b.putOptions(opts)); err != nil {
		return b.fail(err, "put_file", remote)
	}
	b.listings.Invalidate(remote)
	return nil
}

// Copy duplicates an object server side
func (b *Backend) Copy(ctx context.Context, src, dst string) error {
	sb, sk, err := requireKey(src)
	if err != nil {
		return err
	}
	db, dk, err := requireKey(dst)
	if err != nil {
		return err
	}
	_, err = b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: db, Object: dk},
		minio.CopySrcOptions{Bucket: sb, Object: sk})
	if err != nil {
		return b.fail(err, "copy", src)
	}
	b.listings.Invalidate(dst)
	return nil
}

// Move copies then deletes the source
func (b *Backend) Move(ctx context.Context, src, dst string) error {
	if err := b.Copy(ctx, src, dst); err != nil {
		return err
	}
	return b.RemoveFile(ctx, src)
}

// RemoveFile deletes one object. A missing object is NotFound.
func (b *Backend) RemoveFile(ctx context.Context, path string) error {
	fi, err := b.Stat(ctx, path)
	if err != nil {
		return err
	}
	if fi.IsDir {
		return cperrors.PathInvalid(path, "is a directory")
	}
	bucket, key := storage.SplitPath(path)
	if err := b.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return b.fail(err, "rm_file", path)
	}
	b.listings.Invalidate(path)
	return nil
}

// RemoveAll deletes an object or every object below a prefix. On a bucket path the
// emptied bucket is removed as well.
func (b *Backend) RemoveAll(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return cperrors.PathInvalid(path, "bucket required")
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	objects := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(objects)
		send := func(obj minio.ObjectInfo) bool {
			select {
			case objects <- obj:
				return true
			case <-lctx.Done():
				return false
			}
		}
		if key != "" && !send(minio.ObjectInfo{Key: key}) {
			return
		}
		for obj := range b.client.ListObjects(lctx, bucket, minio.ListObjectsOptions{
			Prefix:    storage.DirPrefix(key),
			Recursive: true,
		}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			if !send(obj) {
				return
			}
		}
	}()

	for rerr := range b.client.RemoveObjects(lctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && minio.ToErrorResponse(rerr.Err).Code != "NoSuchKey" {
			return b.fail(rerr.Err, "rm", path)
		}
	}
	select {
	case err := <-listErr:
		return b.fail(err, "rm", path)
	default:
	}

	if key == "" {
		if err := b.client.RemoveBucket(ctx, bucket); err != nil {
			return b.fail(err, "rm", path)
		}
	}
	b.listings.Invalidate(path)
	return nil
}

// Rmdir removes an empty directory marker or an empty bucket
func (b *Backend) Rmdir(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return cperrors.PathInvalid(path, "bucket required")
	}
	if key == "" {
		if err := b.client.RemoveBucket(ctx, bucket); err != nil {
			return b.fail(err, "rmdir", path)
		}
		b.listings.Invalidate(path)
		return nil
	}

	entries, err := b.List(ctx, path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return cperrors.PathInvalid(path, "directory not empty")
	}
	if err := b.client.RemoveObject(ctx, bucket, storage.DirPrefix(key), minio.RemoveObjectOptions{}); err != nil {
		return b.fail(err, "rmdir", path)
	}
	b.listings.Invalidate(path)
	return nil
}

// Mkdir creates a bucket, or a directory marker below one
func (b *Backend) Mkdir(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return cperrors.PathInvalid(path, "bucket required")
	}
	if key == "" {
		return b.MakeBucket(ctx, bucket)
	}
	_, err := b.client.PutObject(ctx, bucket, storage.DirPrefix(key), bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return b.fail(err, "mkdir", path)
	}
	b.listings.Invalidate(path)
	return nil
}

// MakeBucket creates bucket. An existing bucket is not an error.
func (b *Backend) MakeBucket(ctx context.Context, bucket string) error {
	err := b.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: b.config.Region})
	if err != nil {
		if exists, eerr := b.client.BucketExists(ctx, bucket); eerr == nil && exists {
			return nil
		}
		return b.fail(err, "mkdir", bucket)
	}
	b.listings.Invalidate("")
	return nil
}

// Touch creates an empty object when path does not exist
func (b *Backend) Touch(ctx context.Context, path string) error {
	_, err := b.Stat(ctx, path)
	if err == nil {
		return nil
	}
	if !cperrors.IsNotFound(err) {
		return err
	}
	return b.PipeFile(ctx, path, nil, backend.WriteOptions{ContentType: "application/octet-stream"})
}

// Sign returns a presigned GET URL valid for expiry
func (b *Backend) Sign(ctx context.Context, path string, expiry time.Duration) (string, error) {
	bucket, key, err := requireKey(path)
	if err != nil {
		return "", err
	}
	u, err := b.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", b.fail(err, "url", path)
	}
	return u.String(), nil
}

// SetMetadata merges metadata into an object by copying it onto itself
func (b *Backend) SetMetadata(ctx context.Context, path string, metadata map[string]string) error {
	fi, err := b.Stat(ctx, path)
	if err != nil {
		return err
	}
	if fi.IsDir {
		return cperrors.PathInvalid(path, "is a directory")
	}
	merged := make(map[string]string, len(fi.Metadata)+len(metadata))
	for k, v := range fi.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	bucket, key := storage.SplitPath(path)
	_, err = b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: key, UserMetadata: merged, ReplaceMetadata: true},
		minio.CopySrcOptions{Bucket: bucket, Object: key})
	if err != nil {
		return b.fail(err, "setxattrs", path)
	}
	return nil
}

// InvalidateCache drops the cached listings of path and its ancestors
func (b *Backend) InvalidateCache(path string) {
	b.listings.Invalidate(path)
}

func (b *Backend) String() string {
	return fmt.Sprintf("minio(%s, %s)", b.scheme, b.config.Endpoint)
}
