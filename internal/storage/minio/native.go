package minio

import (
	"bytes"
	"context"
	"sort"

	"github.com/minio/minio-go/v7"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/internal/storage"
)

// The part primitives go through minio.Core and return minio-go errors unchanged so
// multipart handles can classify protocol rejections.

// CreateMultipart starts a multipart upload and returns its upload ID
func (b *Backend) CreateMultipart(ctx context.Context, bucket, key string, opts backend.WriteOptions) (string, error) {
	uploadID, err := b.core.NewMultipartUpload(ctx, bucket, key, b.putOptions(opts))
	if err != nil {
		return "", err
	}
	b.logger.Debug("Multipart upload initiated",
		"scheme", b.scheme,
		"bucket", bucket,
		"key", key,
		"upload_id", uploadID)
	return uploadID, nil
}

// UploadPart uploads one part and returns its ETag
func (b *Backend) UploadPart(ctx context.Context, bucket, key, uploadID string, number int, data []byte) (string, error) {
	part, err := b.core.PutObjectPart(ctx, bucket, key, uploadID, number,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return "", err
	}
	return part.ETag, nil
}

// CompleteMultipart assembles the uploaded parts in part-number order
func (b *Backend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []multipart.Part) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: p.Number, ETag: p.ETag})
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].PartNumber < completed[j].PartNumber })

	if _, err := b.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return err
	}
	b.listings.Invalidate(storage.JoinPath(bucket, key))
	return nil
}

// AbortMultipart discards a multipart upload and its parts
func (b *Backend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	err := b.core.AbortMultipartUpload(ctx, bucket, key, uploadID)
	if err != nil {
		b.logger.Warn("Failed to abort multipart upload",
			"scheme", b.scheme,
			"bucket", bucket,
			"key", key,
			"upload_id", uploadID,
			"error", err)
	}
	return err
}

// PutObject stores data in one request
func (b *Backend) PutObject(ctx context.Context, bucket, key string, data []byte, opts backend.WriteOptions) error {
	_, err := b.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), b.putOptions(opts))
	if err != nil {
		return err
	}
	b.listings.Invalidate(storage.JoinPath(bucket, key))
	return nil
}

var _ multipart.Client = (*Backend)(nil)
