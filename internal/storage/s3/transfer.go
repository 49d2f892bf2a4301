package s3

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/internal/storage"
)

// TransferManager moves whole objects with the SDK transfer manager. When CargoShip
// optimization is enabled, uploads try the CargoShip transporter first and fall back to the
// SDK uploader on failure.
type TransferManager struct {
	backend    *Backend
	uploader   *manager.Uploader
	downloader *manager.Downloader
	logger     *slog.Logger

	mu           sync.Mutex
	transporters map[string]*cargoships3.Transporter
}

// NewTransferManager builds a transfer manager over b's client
func NewTransferManager(b *Backend) *TransferManager {
	cfg := b.config
	return &TransferManager{
		backend: b,
		uploader: manager.NewUploader(b.client, func(u *manager.Uploader) {
			if cfg.PartSize >= manager.MinUploadPartSize {
				u.PartSize = cfg.PartSize
			}
			if cfg.Concurrency > 0 {
				u.Concurrency = cfg.Concurrency
			}
		}),
		downloader: manager.NewDownloader(b.client, func(d *manager.Downloader) {
			if cfg.Concurrency > 0 {
				d.Concurrency = cfg.Concurrency
			}
		}),
		logger:       b.logger,
		transporters: make(map[string]*cargoships3.Transporter),
	}
}

// transporter returns the CargoShip transporter of bucket, or nil when disabled
func (tm *TransferManager) transporter(bucket string) *cargoships3.Transporter {
	if !tm.backend.config.UseCargoship {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.transporters[bucket]
	if !ok {
		t = tm.backend.clients.NewTransporter(bucket)
		tm.transporters[bucket] = t
	}
	return t
}

// Upload stores size bytes read from r as bucket/key
func (tm *TransferManager) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, opts backend.WriteOptions) error {
	start := time.Now()

	if transporter := tm.transporter(bucket); transporter != nil {
		if ra, ok := r.(io.ReadSeeker); ok {
			err := tm.uploadCargoShip(ctx, transporter, key, ra, size, opts)
			if err == nil {
				tm.backend.metrics.RecordManagerUpload(size, true)
				tm.backend.listings.Invalidate(storage.JoinPath(bucket, key))
				return nil
			}
			tm.backend.metrics.RecordFallbackEvent()
			tm.logger.Warn("CargoShip optimization failed, falling back to standard S3",
				"bucket", bucket,
				"key", key,
				"error", err)
			if _, serr := ra.Seek(0, io.SeekStart); serr != nil {
				return serr
			}
		}
	}

	input := tm.backend.putInput(bucket, key, opts)
	input.Body = r
	_, err := tm.uploader.Upload(ctx, input)
	tm.backend.record(start, err)
	if err != nil {
		return err
	}
	tm.backend.metrics.RecordManagerUpload(size, false)
	tm.backend.listings.Invalidate(storage.JoinPath(bucket, key))
	tm.logger.Debug("Transfer manager upload completed",
		"bucket", bucket,
		"key", key,
		"size", size,
		"duration", time.Since(start))
	return nil
}

func (tm *TransferManager) uploadCargoShip(ctx context.Context, t *cargoships3.Transporter, key string, r io.Reader, size int64, opts backend.WriteOptions) error {
	class := opts.StorageClass
	if class == "" {
		class = tm.backend.config.StorageClass
	}
	archive := cargoships3.Archive{
		Key:          key,
		Reader:       r,
		Size:         size,
		StorageClass: cargoStorageClass(class),
		Metadata:     opts.Metadata,
	}
	result, err := t.Upload(ctx, archive)
	if err != nil {
		return err
	}
	tm.logger.Debug("CargoShip optimized upload completed",
		"key", key,
		"size", size,
		"throughput", result.Throughput,
		"duration", result.Duration)
	return nil
}

// Download writes bucket/key to w and returns the byte count
func (tm *TransferManager) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	start := time.Now()
	n, err := tm.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	tm.backend.record(start, err)
	if err != nil {
		return n, translateError(err, tm.backend.scheme, "download", storage.JoinPath(bucket, key))
	}
	tm.backend.metrics.RecordBytesDownloaded(n)
	return n, nil
}

// Shutdown releases the manager
func (tm *TransferManager) Shutdown(context.Context) error {
	tm.logger.Info("Shutting Down S3 Transfer Manager", "scheme", tm.backend.scheme)
	return nil
}

var _ multipart.TransferManager = (*TransferManager)(nil)
