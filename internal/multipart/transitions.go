package multipart

import (
	"bytes"
	"context"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/objectfs/cloudpath/pkg/errors"
)

// Every transition runs with h.mu held. Errors returned by backend calls are events fed to
// the next transition, never unwound past the handle.

func (h *Handle) onWrite(ctx context.Context, p []byte) (int, error) {
	if h.state.Terminal() {
		return 0, h.rejectTerminal("write")
	}
	if h.state == Uninitialized {
		h.state = Buffering
	}
	h.data = append(h.data, p...)

	if int64(len(h.data))-h.flushed >= h.opts.BlockSize {
		if err := h.onFlush(ctx, false); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// onFlush uploads buffered bytes as parts. A non-final flush waits for a full block; a final
// flush sends everything. Reaching the large threshold switches to LargeTransfer instead.
func (h *Handle) onFlush(ctx context.Context, final bool) error {
	if h.state.Terminal() {
		return h.rejectTerminal("flush")
	}
	if h.state == LargeTransfer {
		return nil
	}
	if h.largeEligible() {
		return h.enterLargeTransfer(ctx, "threshold")
	}

	pending := int64(len(h.data)) - h.flushed
	if pending == 0 || (!final && pending < h.opts.BlockSize) {
		return nil
	}

	if h.uploadID == "" {
		if err := h.openSession(ctx); err != nil {
			return h.fail(ctx, "create_multipart", err)
		}
	}

	ranges := SliceParts(pending, h.opts.BlockSize, h.opts.PartMax)
	base := len(h.parts)
	uploaded := make([]Part, len(ranges))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(h.opts.Concurrency)
	for i, r := range ranges {
		number := base + i + 1
		body := h.data[h.flushed+r.Offset : h.flushed+r.End()]
		p.Go(func(ctx context.Context) error {
			etag, err := h.client.UploadPart(ctx, h.opts.Bucket, h.opts.Key, h.uploadID, number, body)
			if err != nil {
				return err
			}
			uploaded[i] = Part{Number: number, ETag: etag, Size: int64(len(body))}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return h.fail(ctx, "upload_part", err)
	}

	for _, part := range uploaded {
		h.parts = append(h.parts, part)
		h.opts.Tracker.RecordPart(h.uploadID, part)
		h.opts.Observer.ObservePart(h.opts.Scheme, part.Size)
	}
	h.flushed += pending
	h.logger.Debug("Uploaded parts", "parts", len(uploaded), "bytes", pending, "final", final)
	return nil
}

// onCommit publishes the object. Zero bytes touch an empty object; a handle that never
// opened a session is sent with one put; otherwise the session is completed.
func (h *Handle) onCommit(ctx context.Context) error {
	if h.state.Terminal() {
		return h.rejectTerminal("commit")
	}

	var err error
	switch {
	case len(h.data) == 0:
		h.abortSession(ctx)
		err = h.client.PutObject(ctx, h.opts.Bucket, h.opts.Key, nil, h.opts.Write)
		if err != nil {
			err = errors.TransferFailure(h.opts.Scheme, h.path(), "touch", err)
		}
		h.state = SingleShot

	case h.state == LargeTransfer || h.largeEligible():
		if h.state != LargeTransfer {
			if err := h.enterLargeTransfer(ctx, "threshold"); err != nil {
				return err
			}
		}
		err = h.largeUpload(ctx)

	case h.uploadID == "":
		h.state = SingleShot
		err = h.client.PutObject(ctx, h.opts.Bucket, h.opts.Key, h.data, h.opts.Write)
		if err != nil {
			err = errors.TransferFailure(h.opts.Scheme, h.path(), "put_object", err)
		}

	default:
		if err := h.onFlush(ctx, true); err != nil {
			return err
		}
		cerr := h.client.CompleteMultipart(ctx, h.opts.Bucket, h.opts.Key, h.uploadID, h.parts)
		if cerr != nil {
			err = h.onCompletionFailed(ctx, cerr)
		} else {
			h.opts.Tracker.MarkCompleted(h.uploadID)
		}
	}

	if err != nil {
		h.state = Aborted
		return err
	}

	strategy := h.state
	h.state = Committed
	h.data, h.parts = nil, nil
	h.opts.Observer.ObserveCommit(h.opts.Scheme, strategy)
	h.invalidateAncestors()
	return nil
}

// onCompletionFailed aborts the session and, for a part-size protocol violation, retries
// exactly once through the transfer manager.
func (h *Handle) onCompletionFailed(ctx context.Context, cause error) error {
	h.abortSession(ctx)

	if !IsProtocolViolation(cause) {
		return errors.TransferFailure(h.opts.Scheme, h.path(), "complete_multipart", cause)
	}
	if h.opts.Manager == nil {
		return errors.MultipartProtocolViolation(h.opts.Scheme, h.path(), cause)
	}

	h.logger.Warn("Multipart completion rejected, retrying as large upload", "error", cause)
	h.opts.Observer.ObserveFallback(h.opts.Scheme, "completion_rejected")
	h.state = LargeTransfer
	if err := h.largeUpload(ctx); err != nil {
		return errors.MultipartProtocolViolation(h.opts.Scheme, h.path(), err).
			WithContext("completion_error", cause.Error())
	}
	return nil
}

func (h *Handle) onAbort(ctx context.Context) error {
	err := h.abortSession(ctx)
	h.state = Aborted
	h.data, h.parts = nil, nil
	return err
}

func (h *Handle) fail(ctx context.Context, op string, cause error) error {
	h.logger.Error("Multipart upload failed", "operation", op, "error", cause)
	_ = h.onAbort(ctx)
	return errors.TransferFailure(h.opts.Scheme, h.path(), op, cause)
}

func (h *Handle) largeEligible() bool {
	return h.opts.Manager != nil && h.opts.LargeThreshold > 0 && int64(len(h.data)) >= h.opts.LargeThreshold
}

// enterLargeTransfer drops any active session; the retained bytes go to the transfer
// manager at commit.
func (h *Handle) enterLargeTransfer(ctx context.Context, reason string) error {
	if h.uploadID != "" {
		if err := h.abortSession(ctx); err != nil {
			return h.fail(ctx, "abort_multipart", err)
		}
	}
	h.state = LargeTransfer
	h.opts.Observer.ObserveFallback(h.opts.Scheme, reason)
	h.logger.Info("Switching to large transfer", "reason", reason, "bytes", len(h.data))
	return nil
}

func (h *Handle) largeUpload(ctx context.Context) error {
	tm, err := h.opts.Manager(ctx)
	if err != nil {
		return errors.TransferFailure(h.opts.Scheme, h.path(), "large_upload", err)
	}
	size := int64(len(h.data))
	if err := tm.Upload(ctx, h.opts.Bucket, h.opts.Key, bytes.NewReader(h.data), size, h.opts.Write); err != nil {
		return errors.TransferFailure(h.opts.Scheme, h.path(), "large_upload", err)
	}
	h.logger.Info("Large upload complete", "bytes", size)
	return nil
}

func (h *Handle) openSession(ctx context.Context) error {
	id, err := h.client.CreateMultipart(ctx, h.opts.Bucket, h.opts.Key, h.opts.Write)
	if err != nil {
		return err
	}
	h.uploadID = id
	h.state = MultipartActive

	bucket, key, client := h.opts.Bucket, h.opts.Key, h.client
	h.opts.Tracker.Track(&Session{UploadID: id, Scheme: h.opts.Scheme, Bucket: bucket, Key: key},
		func(ctx context.Context) error { return client.AbortMultipart(ctx, bucket, key, id) })
	return nil
}

// abortSession cancels the open session, if any, and forgets its parts. Uploaded bytes stay
// retained in the buffer.
func (h *Handle) abortSession(ctx context.Context) error {
	if h.uploadID == "" {
		return nil
	}
	id := h.uploadID
	h.uploadID = ""
	h.parts = nil
	h.flushed = 0

	if err := h.client.AbortMultipart(ctx, h.opts.Bucket, h.opts.Key, id); err != nil {
		h.logger.Warn("Failed to abort multipart session", "upload_id", id, "error", err)
		h.opts.Tracker.MarkFailed(id)
		return err
	}
	h.opts.Tracker.MarkAborted(id)
	return nil
}

// invalidateAncestors drops the listing cache of every directory above the object.
func (h *Handle) invalidateAncestors() {
	if h.opts.Invalidate == nil {
		return
	}
	dir := h.opts.Bucket
	h.opts.Invalidate(dir)
	segments := strings.Split(h.opts.Key, "/")
	for _, seg := range segments[:len(segments)-1] {
		dir += "/" + seg
		h.opts.Invalidate(dir)
	}
}
