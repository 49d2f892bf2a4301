package s3

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/internal/storage"
)

// The native part-upload primitives return SDK errors unchanged so that multipart
// handles can classify protocol rejections.

// CreateMultipart starts a multipart upload and returns its upload ID
func (b *Backend) CreateMultipart(ctx context.Context, bucket, key string, opts backend.WriteOptions) (string, error) {
	input := &s3.CreateMultipartUploadInput{
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

	start := time.Now()
	out, err := b.client.CreateMultipartUpload(ctx, input)
	b.record(start, err)
	if err != nil {
		return "", err
	}
	b.logger.Debug("Multipart upload initiated",
		"scheme", b.scheme,
		"bucket", bucket,
		"key", key,
		"upload_id", aws.ToString(out.UploadId))
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part and returns its ETag
func (b *Backend) UploadPart(ctx context.Context, bucket, key, uploadID string, number int, data []byte) (string, error) {
	start := time.Now()
	out, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(number)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	b.record(start, err)
	if err != nil {
		return "", err
	}
	b.metrics.RecordBytesUploaded(int64(len(data)))
	return aws.ToString(out.ETag), nil
}

// CompleteMultipart assembles the uploaded parts in part-number order
func (b *Backend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []multipart.Part) error {
	sorted := append([]multipart.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	completed := make([]s3types.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, s3types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.Number)),
		})
	}

	start := time.Now()
	_, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	b.record(start, err)
	if err != nil {
		return err
	}
	b.listings.Invalidate(storage.JoinPath(bucket, key))
	return nil
}

// AbortMultipart discards a multipart upload and its parts
func (b *Backend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	start := time.Now()
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	b.record(start, err)
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
	input := b.putInput(bucket, key, opts)
	input.Body = bytes.NewReader(data)
	input.ContentLength = aws.Int64(int64(len(data)))

	start := time.Now()
	_, err := b.client.PutObject(ctx, input)
	b.record(start, err)
	if err != nil {
		return err
	}
	b.metrics.RecordBytesUploaded(int64(len(data)))
	b.listings.Invalidate(storage.JoinPath(bucket, key))
	return nil
}

var _ multipart.Client = (*Backend)(nil)
