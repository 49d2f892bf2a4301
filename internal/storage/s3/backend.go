package s3

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/objectfs/cloudpath/internal/backend"
	cpconfig "github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/storage"
	"github.com/objectfs/cloudpath/internal/storage/dircache"
	cperrors "github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// maxDeleteKeys is the DeleteObjects batch limit
const maxDeleteKeys = 1000

// Backend serves the S3 family (aws, s3c, r2) through the AWS SDK. Paths are "bucket/key".
type Backend struct {
	client   *s3.Client
	clients  *ClientManager
	config   *Config
	scheme   string
	listings *dircache.Cache
	metrics  *MetricsCollector
	logger   *slog.Logger
}

// NewBackend creates a backend reporting errors under scheme
func NewBackend(ctx context.Context, scheme string, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clients, err := NewClientManager(ctx, cfg, logger)
	if err != nil {
		return nil, cperrors.BackendUnavailable(scheme, err)
	}

	logger.Info("S3 backend initialized",
		"scheme", scheme,
		"kind", cfg.Kind,
		"endpoint", cfg.Endpoint,
		"cargoship", cfg.UseCargoship)

	return &Backend{
		client:   clients.GetClient(),
		clients:  clients,
		config:   cfg,
		scheme:   scheme,
		listings: dircache.New(cfg.ListingCacheSize, cfg.ListingCacheTTL),
		metrics:  NewMetricsCollector(),
		logger:   logger,
	}, nil
}

// Client returns the underlying SDK client
func (b *Backend) Client() *s3.Client {
	return b.client
}

// Metrics returns the current backend metrics
func (b *Backend) Metrics() BackendMetrics {
	return b.metrics.GetMetrics()
}

func (b *Backend) record(start time.Time, err error) {
	b.metrics.RecordMetrics(time.Since(start), err)
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

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}

// Stat returns the metadata of an object, bucket or directory prefix
func (b *Backend) Stat(ctx context.Context, path string) (types.FileInfo, error) {
	start := time.Now()
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return dirInfo("", time.Time{}), nil
	}
	if key == "" {
		_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		b.record(start, err)
		if err != nil {
			return types.FileInfo{}, b.fail(err, "stat", path)
		}
		return dirInfo(bucket, time.Time{}), nil
	}

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	b.record(start, err)
	if err == nil {
		return types.FileInfo{
			Name:         storage.JoinPath(bucket, key),
			Size:         aws.ToInt64(out.ContentLength),
			LastModified: aws.ToTime(out.LastModified),
			ETag:         trimETag(out.ETag),
			ContentType:  aws.ToString(out.ContentType),
			StorageClass: string(out.StorageClass),
			Metadata:     out.Metadata,
		}, nil
	}
	if terr := b.fail(err, "stat", path); !cperrors.IsNotFound(terr) {
		return types.FileInfo{}, terr
	}

	// No object: a directory exists when anything lives below the prefix
	isDir, err := b.hasPrefix(ctx, bucket, storage.DirPrefix(key))
	if err != nil {
		return types.FileInfo{}, b.fail(err, "stat", path)
	}
	if !isDir {
		return types.FileInfo{}, cperrors.NotFound(b.scheme, path, nil).WithOperation("stat")
	}
	return dirInfo(storage.JoinPath(bucket, key), time.Time{}), nil
}

func (b *Backend) hasPrefix(ctx context.Context, bucket, prefix string) (bool, error) {
	start := time.Now()
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	b.record(start, err)
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// List returns the immediate children of a directory, or the object itself. Directory
// listings are served from the listing cache when present.
func (b *Backend) List(ctx context.Context, path string) ([]types.FileInfo, error) {
	if cached, ok := b.listings.Get(path); ok {
		return cached, nil
	}

	bucket, key := storage.SplitPath(path)
	var (
		entries []types.FileInfo
		err     error
	)
	if bucket == "" {
		entries, err = b.listBuckets(ctx)
	} else {
		entries, err = b.listPrefix(ctx, bucket, key)
	}
	if err != nil {
		return nil, b.fail(err, "list", path)
	}

	if len(entries) == 0 && key != "" {
		// Either a plain object or nothing at all
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

func (b *Backend) listBuckets(ctx context.Context) ([]types.FileInfo, error) {
	start := time.Now()
	out, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	b.record(start, err)
	if err != nil {
		return nil, err
	}
	entries := make([]types.FileInfo, 0, len(out.Buckets))
	for _, bkt := range out.Buckets {
		entries = append(entries, dirInfo(aws.ToString(bkt.Name), aws.ToTime(bkt.CreationDate)))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (b *Backend) listPrefix(ctx context.Context, bucket, key string) ([]types.FileInfo, error) {
	prefix := storage.DirPrefix(key)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []types.FileInfo
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		b.record(start, err)
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			entries = append(entries, dirInfo(storage.JoinPath(bucket, name), time.Time{}))
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == prefix {
				// directory marker
				continue
			}
			entries = append(entries, types.FileInfo{
				Name:         storage.JoinPath(bucket, k),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         trimETag(obj.ETag),
				StorageClass: string(obj.StorageClass),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
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
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	switch {
	case length == 0:
		return io.NopCloser(bytes.NewReader(nil)), nil
	case length > 0:
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	case offset > 0:
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	start := time.Now()
	out, err := b.client.GetObject(ctx, input)
	b.record(start, err)
	if err != nil {
		return nil, b.fail(err, "open", path)
	}
	return &countingReader{ReadCloser: out.Body, metrics: b.metrics}, nil
}

type countingReader struct {
	io.ReadCloser
	metrics *MetricsCollector
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.metrics.RecordBytesDownloaded(int64(n))
	return n, err
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

func (b *Backend) putInput(bucket, key string, opts backend.WriteOptions) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	class := opts.StorageClass
	if class == "" {
		class = b.config.StorageClass
	}
	if class != "" {
		input.StorageClass = storageClass(class)
	}
	return input
}

// PipeFile stores data in one PutObject. The content type is sniffed when unset.
func (b *Backend) PipeFile(ctx context.Context, path string, data []byte, opts backend.WriteOptions) error {
	bucket, key, err := requireKey(path)
	if err != nil {
		return err
	}
	if opts.ContentType == "" {
		opts.ContentType = mimetype.Detect(data).String()
	}
	input := b.putInput(bucket, key, opts)
	input.Body = bytes.NewReader(data)
	input.ContentLength = aws.Int64(int64(len(data)))

	start := time.Now()
	_, err = b.client.PutObject(ctx, input)
	b.record(start, err)
	if err != nil {
		return b.fail(err, "pipe_file", path)
	}
	b.metrics.RecordBytesUploaded(int64(len(data)))
	b.listings.Invalidate(path)
	return nil
}

// PutFile uploads a local file in one PutObject
func (b *Backend) PutFile(ctx context.Context, local, remote string, opts backend.WriteOptions) error {
	bucket, key, err := requireKey(remote)
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		if os.IsNotExist(err) {
			return cperrors.NotFound("file", local, err)
		}
		return cperrors.TransferFailure("file", local, "put_file", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return cperrors.TransferFailure("file", local, "put_file", err)
	}
	if opts.ContentType == "" {
		if mt, err := mimetype.DetectFile(local); err == nil {
			opts.ContentType = mt.String()
		}
	}
	input := b.putInput(bucket, key, opts)
	input.Body = f
	input.ContentLength = aws.Int64(st.Size())

	start := time.Now()
	_, err = b.client.PutObject(ctx, input)
	b.record(start, err)
	if err != nil {
		return b.fail(err, "put_file", remote)
	}
	b.metrics.RecordBytesUploaded(st.Size())
	b.listings.Invalidate(remote)
	return nil
}

func copySource(bucket, key string) string {
	return (&url.URL{Path: bucket + "/" + key}).EscapedPath()
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

	start := time.Now()
	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(db),
		Key:        aws.String(dk),
		CopySource: aws.String(copySource(sb, sk)),
	})
	b.record(start, err)
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

	start := time.Now()
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	b.record(start, err)
	if err != nil {
		return b.fail(err, "rm_file", path)
	}
	b.listings.Invalidate(path)
	return nil
}

// RemoveAll deletes an object or every object below a prefix. On a bucket path the
// emptied bucket is deleted as well.
func (b *Backend) RemoveAll(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return cperrors.PathInvalid(path, "bucket required")
	}

	var keys []string
	if key != "" {
		keys = append(keys, key)
	}
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(storage.DirPrefix(key)),
	})
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		b.record(start, err)
		if err != nil {
			return b.fail(err, "rm", path)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	for len(keys) > 0 {
		n := min(len(keys), maxDeleteKeys)
		if err := b.deleteBatch(ctx, bucket, keys[:n]); err != nil {
			return b.fail(err, "rm", path)
		}
		keys = keys[n:]
	}

	if key == "" {
		start := time.Now()
		_, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
		b.record(start, err)
		if err != nil {
			return b.fail(err, "rm", path)
		}
	}
	b.listings.Invalidate(path)
	return nil
}

func (b *Backend) deleteBatch(ctx context.Context, bucket string, keys []string) error {
	objects := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(k)})
	}
	start := time.Now()
	out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	b.record(start, err)
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("delete %s: %s: %s", aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
	}
	return nil
}

// Rmdir removes an empty directory marker or an empty bucket
func (b *Backend) Rmdir(ctx context.Context, path string) error {
	bucket, key := storage.SplitPath(path)
	if bucket == "" {
		return cperrors.PathInvalid(path, "bucket required")
	}
	if key == "" {
		start := time.Now()
		_, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
		b.record(start, err)
		if err != nil {
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
	start := time.Now()
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(storage.DirPrefix(key)),
	})
	b.record(start, err)
	if err != nil {
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
	if key != "" {
		start := time.Now()
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(storage.DirPrefix(key)),
			Body:   bytes.NewReader(nil),
		})
		b.record(start, err)
		if err != nil {
			return b.fail(err, "mkdir", path)
		}
		b.listings.Invalidate(path)
		return nil
	}
	return b.MakeBucket(ctx, bucket)
}

// MakeBucket creates bucket. An existing bucket the caller can reach is not an error.
func (b *Backend) MakeBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if b.config.Kind == cpconfig.KindAWS && b.config.Region != "" && b.config.Region != cpconfig.DefaultRegion {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(b.config.Region),
		}
	}
	start := time.Now()
	_, err := b.client.CreateBucket(ctx, input)
	b.record(start, err)
	if err != nil {
		terr := b.fail(err, "mkdir", bucket)
		if cperrors.HasCode(terr, cperrors.ErrCodeDestinationExists) {
			// keep going when the existing bucket is ours to use
			if _, herr := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); herr == nil {
				return nil
			}
		}
		return terr
	}
	b.listings.Invalidate("")
	return nil
}

// Touch creates an empty object when path does not exist. Existing objects are left
// untouched since S3 cannot update a modification time in place.
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

// PresignGet returns a presigned GET URL valid for expiry
func (b *Backend) PresignGet(ctx context.Context, path string, expiry time.Duration) (string, error) {
	bucket, key, err := requireKey(path)
	if err != nil {
		return "", err
	}
	req, err := b.clients.GetPresignClient().PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", b.fail(err, "url", path)
	}
	return req.URL, nil
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

	start := time.Now()
	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource(bucket, key)),
		Metadata:          merged,
		ContentType:       aws.String(fi.ContentType),
		MetadataDirective: s3types.MetadataDirectiveReplace,
	})
	b.record(start, err)
	if err != nil {
		return b.fail(err, "setxattrs", path)
	}
	return nil
}

// InvalidateCache drops the cached listings of path and its ancestors
func (b *Backend) InvalidateCache(path string) {
	b.listings.Invalidate(path)
}

// HealthCheck verifies that bucket is reachable
func (b *Backend) HealthCheck(ctx context.Context, bucket string) error {
	return b.clients.HealthCheck(ctx, bucket)
}

// Close releases backend resources
func (b *Backend) Close() error {
	b.listings.Invalidate("")
	m := b.metrics.GetMetrics()
	b.logger.Debug("S3 backend closed",
		"scheme", b.scheme,
		"requests", m.Requests,
		"errors", m.Errors)
	return nil
}

func (b *Backend) String() string {
	return fmt.Sprintf("s3(%s, %s)", b.scheme, b.config.Endpoint)
}
