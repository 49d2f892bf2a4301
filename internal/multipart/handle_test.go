package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cperrors "github.com/objectfs/cloudpath/pkg/errors"
)

func testOptions(key string) Options {
	return Options{
		Scheme:    "mem",
		Bucket:    "bucket",
		Key:       key,
		BlockSize: 8,
	}
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestCommitEmptyTouchesObject(t *testing.T) {
	client := newFakeClient()
	h := NewHandle(context.Background(), client, testOptions("empty.txt"))

	require.NoError(t, h.Close())
	assert.Equal(t, Committed, h.State())

	data, ok := client.object("bucket/empty.txt")
	require.True(t, ok)
	assert.Empty(t, data)
	assert.Zero(t, client.creates)
}

func TestCommitSmallIsSingleShot(t *testing.T) {
	client := newFakeClient()
	obs := &recordingObserver{}
	opts := testOptions("small.txt")
	opts.Observer = obs
	h := NewHandle(context.Background(), client, opts)

	_, err := h.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, Buffering, h.State())
	require.NoError(t, h.Close())

	data, _ := client.object("bucket/small.txt")
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, client.puts)
	assert.Zero(t, client.creates)
	assert.Equal(t, []State{SingleShot}, obs.commits)
}

func TestMultipartRoundTrip(t *testing.T) {
	client := newFakeClient()
	tracker := NewTracker()
	opts := testOptions("dir/multi.bin")
	opts.Tracker = tracker
	h := NewHandle(context.Background(), client, opts)
	want := payload(20)

	_, err := h.Write(want[:7])
	require.NoError(t, err)
	assert.Empty(t, h.UploadID())

	_, err = h.Write(want[7:14])
	require.NoError(t, err)
	assert.Equal(t, MultipartActive, h.State())
	require.Len(t, h.Parts(), 1)
	assert.Equal(t, int64(14), h.Parts()[0].Size, "remainder merges into the previous part")

	_, err = h.Write(want[14:])
	require.NoError(t, err)
	id := h.UploadID()
	require.NoError(t, h.Close())

	got, _ := client.object("bucket/dir/multi.bin")
	assert.Equal(t, want, got)
	assert.Equal(t, 1, client.creates)
	assert.Zero(t, client.puts)

	session, ok := tracker.Get(id)
	require.True(t, ok)
	assert.Equal(t, SessionCompleted, session.Status)
	assert.Len(t, session.Parts, 2)
	assert.Equal(t, int64(20), session.BytesUploaded)
}

func TestCompletionProtocolViolationFallsBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"substring", errors.New("InvalidPart: All non-trailing parts must have the same length.")},
		{"smithy code", &smithy.GenericAPIError{Code: "InvalidPart", Message: "part too small"}},
		{"cloudpath code", cperrors.MultipartProtocolViolation("r2", "bucket/k", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.complete = tt.err
			manager := &fakeManager{client: client}
			obs := &recordingObserver{}
			opts := testOptions("big.bin")
			opts.Manager = manager.factory()
			opts.Observer = obs
			h := NewHandle(context.Background(), client, opts)
			want := payload(30)

			_, err := h.Write(want)
			require.NoError(t, err)
			id := h.UploadID()
			require.NotEmpty(t, id)

			require.NoError(t, h.Close())
			got, _ := client.object("bucket/big.bin")
			assert.Equal(t, want, got)
			assert.Equal(t, 1, manager.uploads)
			assert.Contains(t, client.aborted, id)
			assert.Equal(t, []string{"completion_rejected"}, obs.fallbacks)
			assert.Equal(t, []State{LargeTransfer}, obs.commits)
		})
	}
}

func TestCompletionProtocolViolationWithoutManager(t *testing.T) {
	client := newFakeClient()
	client.complete = errors.New("All non-trailing parts must have the same length.")
	h := NewHandle(context.Background(), client, testOptions("big.bin"))

	_, err := h.Write(payload(20))
	require.NoError(t, err)

	err = h.Close()
	require.Error(t, err)
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeMultipartProtocol))
	assert.Equal(t, Aborted, h.State())
}

func TestCompletionOtherFailureSurfaces(t *testing.T) {
	client := newFakeClient()
	client.complete = errors.New("service unavailable")
	manager := &fakeManager{client: client}
	opts := testOptions("big.bin")
	opts.Manager = manager.factory()
	h := NewHandle(context.Background(), client, opts)

	_, err := h.Write(payload(20))
	require.NoError(t, err)

	err = h.Close()
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeTransferFailure))
	assert.Zero(t, manager.uploads)
}

func TestFallbackFailureSurfacesProtocolViolation(t *testing.T) {
	client := newFakeClient()
	client.complete = errors.New("All non-trailing parts must have the same length.")
	manager := &fakeManager{client: client, fail: errors.New("manager down")}
	opts := testOptions("big.bin")
	opts.Manager = manager.factory()
	h := NewHandle(context.Background(), client, opts)

	_, err := h.Write(payload(20))
	require.NoError(t, err)

	err = h.Close()
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeMultipartProtocol))
	assert.Contains(t, err.Error(), "manager down")
}

func TestLargeThresholdSwitchesToLargeTransfer(t *testing.T) {
	client := newFakeClient()
	manager := &fakeManager{client: client}
	opts := testOptions("huge.bin")
	opts.LargeThreshold = 16
	opts.Manager = manager.factory()
	h := NewHandle(context.Background(), client, opts)
	want := payload(20)

	_, err := h.Write(want[:10])
	require.NoError(t, err)
	id := h.UploadID()
	require.NotEmpty(t, id)

	_, err = h.Write(want[10:])
	require.NoError(t, err)
	assert.Equal(t, LargeTransfer, h.State())
	assert.Empty(t, h.UploadID())
	assert.Contains(t, client.aborted, id)

	require.NoError(t, h.Close())
	got, _ := client.object("bucket/huge.bin")
	assert.Equal(t, want, got)
	assert.Equal(t, 1, manager.uploads)
}

func TestLargeThresholdIgnoredWithoutManager(t *testing.T) {
	client := newFakeClient()
	opts := testOptions("huge.bin")
	opts.LargeThreshold = 16
	h := NewHandle(context.Background(), client, opts)
	want := payload(40)

	_, err := h.Write(want)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	got, _ := client.object("bucket/huge.bin")
	assert.Equal(t, want, got)
}

func TestPartFailureAbortsSession(t *testing.T) {
	client := newFakeClient()
	client.failPart = 1
	h := NewHandle(context.Background(), client, testOptions("broken.bin"))

	_, err := h.Write(payload(10))
	require.Error(t, err)
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeTransferFailure))
	assert.Equal(t, Aborted, h.State())
	assert.Equal(t, []string{"upload-1"}, client.aborted)

	_, ok := client.object("bucket/broken.bin")
	assert.False(t, ok, "no partial object may become visible")
}

func TestTerminalHandleRejectsEvents(t *testing.T) {
	client := newFakeClient()
	h := NewHandle(context.Background(), client, testOptions("done.txt"))
	_, err := h.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Write([]byte("y"))
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeInvalidState))
	err = h.Close()
	assert.True(t, cperrors.HasCode(err, cperrors.ErrCodeInvalidState))
	assert.NoError(t, h.Abort())

	aborted := NewHandle(context.Background(), client, testOptions("gone.txt"))
	_, err = aborted.Write(payload(9))
	require.NoError(t, err)
	require.NoError(t, aborted.Abort())
	assert.Equal(t, Aborted, aborted.State())
	assert.True(t, cperrors.HasCode(aborted.Close(), cperrors.ErrCodeInvalidState))
	_, ok := client.object("bucket/gone.txt")
	assert.False(t, ok)
}

func TestOnDoneRunsOnceWhenTerminal(t *testing.T) {
	tests := []struct {
		name   string
		finish func(h *Handle) error
		fail   bool
	}{
		{"commit", func(h *Handle) error { return h.Close() }, false},
		{"abort", func(h *Handle) error { return h.Abort() }, false},
		{"part failure", func(h *Handle) error { _, err := h.Write(payload(10)); return err }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			if tt.fail {
				client.failPart = 1
			}
			done := 0
			opts := testOptions("done.bin")
			opts.OnDone = func() { done++ }
			h := NewHandle(context.Background(), client, opts)

			_, err := h.Write([]byte("abc"))
			require.NoError(t, err)
			assert.Zero(t, done)

			err = tt.finish(h)
			assert.Equal(t, tt.fail, err != nil)
			assert.True(t, h.State().Terminal())
			assert.Equal(t, 1, done)

			_ = h.Close()
			_ = h.Abort()
			assert.Equal(t, 1, done)
		})
	}
}

func TestCommitInvalidatesAncestors(t *testing.T) {
	client := newFakeClient()
	var invalidated []string
	opts := testOptions("a/b/c.txt")
	opts.Invalidate = func(p string) { invalidated = append(invalidated, p) }
	h := NewHandle(context.Background(), client, opts)

	_, err := h.Write([]byte("c"))
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, []string{"bucket", "bucket/a", "bucket/a/b"}, invalidated)
}

func TestConcurrentPartUploadsKeepOrder(t *testing.T) {
	client := newFakeClient()
	opts := testOptions("ordered.bin")
	opts.Concurrency = 8
	h := NewHandle(context.Background(), client, opts)

	want := payload(8*25 + 3)
	var buf bytes.Buffer
	buf.Write(want)
	_, err := h.Write(buf.Bytes())
	require.NoError(t, err)

	parts := h.Parts()
	for i, p := range parts {
		assert.Equal(t, i+1, p.Number)
		assert.Equal(t, fmt.Sprintf("etag-%d", i+1), p.ETag)
	}
	require.NoError(t, h.Close())
	got, _ := client.object("bucket/ordered.bin")
	assert.Equal(t, want, got)
}
