package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/internal/storage"
)

// TransferManager moves whole objects with minio-go's parallel multipart uploader
type TransferManager struct {
	backend *Backend
}

// NewTransferManager returns a transfer manager over b's client
func NewTransferManager(b *Backend) *TransferManager {
	return &TransferManager{backend: b}
}

// Upload stores size bytes read from r as bucket/key
func (tm *TransferManager) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, opts backend.WriteOptions) error {
	b := tm.backend
	start := time.Now()
	putOpts := b.putOptions(opts)
	if b.config.PartSize > 0 {
		putOpts.PartSize = uint64(b.config.PartSize)
	}
	putOpts.NumThreads = b.config.ManagerThreads

	info, err := b.client.PutObject(ctx, bucket, key, r, size, putOpts)
	if err != nil {
		return err
	}
	b.listings.Invalidate(storage.JoinPath(bucket, key))
	b.logger.Debug("Transfer manager upload completed",
		"bucket", bucket,
		"key", key,
		"size", info.Size,
		"duration", time.Since(start))
	return nil
}

// Download writes bucket/key to w and returns the byte count
func (tm *TransferManager) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	path := storage.JoinPath(bucket, key)
	obj, err := tm.backend.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, translateError(err, tm.backend.scheme, "download", path)
	}
	defer obj.Close()

	n, err := io.Copy(io.NewOffsetWriter(w, 0), obj)
	if err != nil {
		return n, translateError(err, tm.backend.scheme, "download", path)
	}
	return n, nil
}

// Shutdown releases the manager
func (tm *TransferManager) Shutdown(context.Context) error {
	tm.backend.logger.Info("Shutting Down MinIO Transfer Manager", "scheme", tm.backend.scheme)
	return nil
}

var _ multipart.TransferManager = (*TransferManager)(nil)
