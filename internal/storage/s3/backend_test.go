package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/multipart"
	cperrors "github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
	"github.com/objectfs/cloudpath/pkg/utils"
)

func fakeProvider(t *testing.T) *config.ProviderConfig {
	t.Helper()
	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)

	p := config.DefaultProvider(config.KindS3C)
	p.Endpoint = ts.URL
	p.AccessKey = "test"
	p.SecretKey = "test"
	p.Addressing = config.AddressingPath
	return p
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()
	b, err := NewBackend(ctx, "s3c", NewConfig(fakeProvider(t)), nil)
	require.NoError(t, err)
	require.NoError(t, b.Mkdir(ctx, "bucket"))
	return b
}

func names(entries []types.FileInfo) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestNewConfig(t *testing.T) {
	p := config.DefaultProvider(config.KindR2)
	p.AccountID = "acct"

	cfg := NewConfig(p)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", cfg.Endpoint)
	assert.Equal(t, p.WriteChunkSize(), cfg.PartSize)
	assert.Equal(t, p.MultipartThreshold(), cfg.MultipartThreshold)
	assert.Positive(t, cfg.Concurrency)
	assert.False(t, cfg.UsePathStyle)
}

func TestBackend_PipeStatCat(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.PipeFile(ctx, "bucket/dir/a.json", []byte(`{"a":1}`), backend.WriteOptions{}))

	fi, err := b.Stat(ctx, "bucket/dir/a.json")
	require.NoError(t, err)
	assert.Equal(t, int64(7), fi.Size)
	assert.False(t, fi.IsDir)
	assert.Equal(t, "application/json", fi.ContentType)

	fi, err = b.Stat(ctx, "bucket/dir")
	require.NoError(t, err)
	assert.True(t, fi.IsDir)

	data, err := b.CatFile(ctx, "bucket/dir/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = b.Stat(ctx, "bucket/missing")
	assert.True(t, cperrors.IsNotFound(err))
	_, err = b.CatFile(ctx, "bucket/missing")
	assert.True(t, cperrors.IsNotFound(err))

	m := b.Metrics()
	assert.Positive(t, m.Requests)
	assert.Equal(t, int64(7), m.BytesUploaded)
}

func TestBackend_ListUsesCache(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	for _, p := range []string{"bucket/a.txt", "bucket/dir/b.txt", "bucket/dir/sub/c.txt"} {
		require.NoError(t, b.PipeFile(ctx, p, []byte("x"), backend.WriteOptions{}))
	}

	entries, err := b.List(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket/a.txt", "bucket/dir"}, names(entries))

	entries, err = b.List(ctx, "bucket/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket/dir/b.txt", "bucket/dir/sub"}, names(entries))

	entries, err = b.List(ctx, "bucket/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket/a.txt"}, names(entries))

	before := b.Metrics().Requests
	_, err = b.List(ctx, "bucket/dir")
	require.NoError(t, err)
	assert.Equal(t, before, b.Metrics().Requests, "cached listing must not hit the service")

	// a write below dir invalidates its listing
	require.NoError(t, b.PipeFile(ctx, "bucket/dir/d.txt", []byte("y"), backend.WriteOptions{}))
	entries, err = b.List(ctx, "bucket/dir")
	require.NoError(t, err)
	assert.Contains(t, names(entries), "bucket/dir/d.txt")

	_, err = b.List(ctx, "bucket/nothing")
	assert.True(t, cperrors.IsNotFound(err))

	buckets, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket"}, names(buckets))
}

func TestBackend_OpenRange(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.PipeFile(ctx, "bucket/r.bin", []byte("0123456789"), backend.WriteOptions{}))

	tests := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"middle", 2, 3, "234"},
		{"to end", 7, -1, "789"},
		{"whole", 0, -1, "0123456789"},
		{"empty", 4, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := b.OpenRange(ctx, "bucket/r.bin", tt.offset, tt.length)
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestBackend_CopyMoveRemove(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.PipeFile(ctx, "bucket/src.txt", []byte("payload"), backend.WriteOptions{}))

	require.NoError(t, b.Copy(ctx, "bucket/src.txt", "bucket/copy.txt"))
	data, err := b.CatFile(ctx, "bucket/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, b.Move(ctx, "bucket/copy.txt", "bucket/moved/m.txt"))
	_, err = b.Stat(ctx, "bucket/copy.txt")
	assert.True(t, cperrors.IsNotFound(err))
	_, err = b.Stat(ctx, "bucket/moved/m.txt")
	require.NoError(t, err)

	require.NoError(t, b.RemoveFile(ctx, "bucket/src.txt"))
	err = b.RemoveFile(ctx, "bucket/src.txt")
	assert.True(t, cperrors.IsNotFound(err))

	require.NoError(t, b.PipeFile(ctx, "bucket/tree/x", []byte("1"), backend.WriteOptions{}))
	require.NoError(t, b.PipeFile(ctx, "bucket/tree/y/z", []byte("2"), backend.WriteOptions{}))
	require.NoError(t, b.RemoveAll(ctx, "bucket/tree"))
	_, err = b.Stat(ctx, "bucket/tree")
	assert.True(t, cperrors.IsNotFound(err))
}

func TestBackend_MkdirRmdirTouch(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	// creating a reachable bucket again is not an error
	require.NoError(t, b.Mkdir(ctx, "bucket"))

	require.NoError(t, b.Mkdir(ctx, "bucket/empty"))
	fi, err := b.Stat(ctx, "bucket/empty")
	require.NoError(t, err)
	assert.True(t, fi.IsDir)

	entries, err := b.List(ctx, "bucket/empty")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, b.Touch(ctx, "bucket/empty/t.txt"))
	err = b.Rmdir(ctx, "bucket/empty")
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodePathInvalid))

	require.NoError(t, b.Touch(ctx, "bucket/empty/t.txt"))
	fi, err = b.Stat(ctx, "bucket/empty/t.txt")
	require.NoError(t, err)
	assert.Zero(t, fi.Size)

	require.NoError(t, b.RemoveFile(ctx, "bucket/empty/t.txt"))
	require.NoError(t, b.Rmdir(ctx, "bucket/empty"))
	_, err = b.Stat(ctx, "bucket/empty")
	assert.True(t, cperrors.IsNotFound(err))
}

func TestBackend_PutFileAndPresign(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	local := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(local, []byte("<html><body>hi</body></html>"), 0600))
	require.NoError(t, b.PutFile(ctx, local, "bucket/site/page.html", backend.WriteOptions{}))

	fi, err := b.Stat(ctx, "bucket/site/page.html")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fi.ContentType, "text/html"))

	err = b.PutFile(ctx, filepath.Join(t.TempDir(), "nope"), "bucket/x", backend.WriteOptions{})
	assert.True(t, cperrors.IsNotFound(err))

	url, err := b.PresignGet(ctx, "bucket/site/page.html", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "/bucket/site/page.html")
	assert.Contains(t, url, "X-Amz-Signature")
	assert.Contains(t, url, "X-Amz-Expires=3600")
}

func TestBackend_MultipartHandle(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	tracker := multipart.NewTracker()

	h := multipart.NewHandle(ctx, b, multipart.Options{
		Scheme:    "s3c",
		Bucket:    "bucket",
		Key:       "big.bin",
		BlockSize: 5 * utils.MiB,
		Tracker:   tracker,
	})

	first := bytes.Repeat([]byte("a"), 5*utils.MiB+100)
	_, err := h.Write(first)
	require.NoError(t, err)
	assert.Equal(t, multipart.MultipartActive, h.State())
	_, err = h.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, multipart.Committed, h.State())
	assert.Len(t, h.Parts(), 2)

	fi, err := b.Stat(ctx, "bucket/big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(first)+4), fi.Size)
	session, ok := tracker.Get(h.UploadID())
	require.True(t, ok)
	assert.Equal(t, multipart.SessionCompleted, session.Status)
	assert.Empty(t, tracker.Active())
}

func TestTransferManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	tm := NewTransferManager(b)

	body := bytes.Repeat([]byte("0123456789"), 1000)
	require.NoError(t, tm.Upload(ctx, "bucket", "managed.bin", bytes.NewReader(body), int64(len(body)), backend.WriteOptions{}))

	buf := make([]byte, len(body))
	n, err := tm.Download(ctx, "bucket", "managed.bin", newWriterAt(buf))
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, buf)

	_, err = tm.Download(ctx, "bucket", "missing.bin", newWriterAt(buf))
	assert.True(t, cperrors.IsNotFound(err))

	m := b.Metrics()
	assert.Equal(t, int64(1), m.ManagerUploads)
	assert.Zero(t, m.CargoShipUploads)
	require.NoError(t, tm.Shutdown(ctx))
}

func TestFactory_Build(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil, 16, time.Minute)

	comps, err := f.Build(ctx, "s3c", fakeProvider(t))
	require.NoError(t, err)
	require.NotNil(t, comps.Native)
	require.NotNil(t, comps.NewManager)

	caps := backend.Resolve(comps.Driver)
	assert.Equal(t, "PresignGet", caps.ResolvedAlias(backend.OpURL))
	assert.Equal(t, "Move", caps.ResolvedAlias(backend.OpRename))

	tm, err := comps.NewManager(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tm)
	require.NoError(t, comps.Close(ctx))
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code cperrors.ErrorCode
	}{
		{"typed no such key", &s3types.NoSuchKey{}, cperrors.ErrCodeNotFound},
		{"no such bucket code", &smithy.GenericAPIError{Code: "NoSuchBucket"}, cperrors.ErrCodeNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, cperrors.ErrCodeAccessDenied},
		{"entity too small", &smithy.GenericAPIError{Code: "EntityTooSmall"}, cperrors.ErrCodeMultipartProtocol},
		{"invalid part order", &smithy.GenericAPIError{Code: "InvalidPartOrder"}, cperrors.ErrCodeMultipartProtocol},
		{"owned bucket", &s3types.BucketAlreadyOwnedByYou{}, cperrors.ErrCodeDestinationExists},
		{"other", errors.New("connection reset"), cperrors.ErrCodeTransferFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError(tt.err, "s3", "stat", "bucket/key")
			assert.Equal(t, tt.code, cperrors.CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, translateError(nil, "s3", "stat", "bucket/key"))
}

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()
	assert.Zero(t, mc.GetErrorRate())

	mc.RecordMetrics(10*time.Millisecond, nil)
	mc.RecordMetrics(20*time.Millisecond, errors.New("boom"))
	mc.RecordManagerUpload(100, true)
	mc.RecordFallbackEvent()

	m := mc.GetMetrics()
	assert.Equal(t, int64(2), m.Requests)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, "boom", m.LastError)
	assert.Equal(t, int64(100), m.BytesUploaded)
	assert.Equal(t, int64(1), m.CargoShipUploads)
	assert.Equal(t, int64(1), m.FallbackEvents)
	assert.Equal(t, 11*time.Millisecond, m.AverageLatency)
	assert.Equal(t, map[cperrors.ErrorCode]int64{"": 1}, m.ErrorsByCode)
	assert.InDelta(t, 0.5, mc.GetErrorRate(), 0.001)

	mc.RecordMetrics(time.Millisecond, cperrors.NotFound("s3", "bucket/key", nil))
	assert.Equal(t, int64(1), mc.GetMetrics().ErrorsByCode[cperrors.ErrCodeNotFound])

	mc.Reset()
	assert.Zero(t, mc.GetMetrics().Requests)
	assert.Nil(t, mc.GetMetrics().ErrorsByCode)
}

type writerAt struct {
	buf []byte
}

func newWriterAt(buf []byte) *writerAt { return &writerAt{buf: buf} }

func (w *writerAt) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(w.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(w.buf[off:], p), nil
}
