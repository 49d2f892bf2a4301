// Package multipart owns object-store writes: buffering, part slicing, the multipart
// upload protocol and the large-transfer fallback.
package multipart

import (
	"context"
	"io"

	"github.com/objectfs/cloudpath/internal/backend"
)

// Part is one uploaded part of a multipart session.
type Part struct {
	Number int    `json:"part_number"`
	ETag   string `json:"etag"`
	Size   int64  `json:"size"`
}

// Client is the native object-store surface: bucket creation, part upload primitives and
// single-shot puts.
type Client interface {
	MakeBucket(ctx context.Context, bucket string) error
	CreateMultipart(ctx context.Context, bucket, key string, opts backend.WriteOptions) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, number int, data []byte) (string, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
	PutObject(ctx context.Context, bucket, key string, data []byte, opts backend.WriteOptions) error
}

// TransferManager is a provider bulk transfer facility with its own parallelism.
type TransferManager interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, opts backend.WriteOptions) error
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
	Shutdown(ctx context.Context) error
}

// ManagerFunc returns the transfer manager of a bundle, building it on first use.
type ManagerFunc func(ctx context.Context) (TransferManager, error)

// Observer receives handle events. Implementations must be safe for concurrent use.
type Observer interface {
	ObservePart(scheme string, size int64)
	ObserveCommit(scheme string, strategy State)
	ObserveFallback(scheme, reason string)
}

type nopObserver struct{}

func (nopObserver) ObservePart(string, int64)      {}
func (nopObserver) ObserveCommit(string, State)    {}
func (nopObserver) ObserveFallback(string, string) {}
