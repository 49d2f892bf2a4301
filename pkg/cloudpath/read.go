package cloudpath

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"iter"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"

	"github.com/objectfs/cloudpath/internal/accessor"
	"github.com/objectfs/cloudpath/internal/bundle"
	"github.com/objectfs/cloudpath/internal/chunk"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// source reads one path. Read streams the whole object through a lazily opened reader;
// ReadAt issues ranged reads and is only offered when the backend supports them.
type source struct {
	ctx    context.Context
	access *accessor.Accessor
	target any
	rc     io.ReadCloser
}

func (s *source) Read(p []byte) (int, error) {
	if s.rc == nil {
		rc, err := s.access.Open(s.ctx, s.target)
		if err != nil {
			return 0, err
		}
		s.rc = rc
	}
	return s.rc.Read(p)
}

func (s *source) Close() error {
	if s.rc == nil {
		return nil
	}
	return s.rc.Close()
}

type rangedSource struct {
	*source
}

func (s rangedSource) ReadAt(p []byte, off int64) (int, error) {
	rc, err := s.access.OpenRange(s.ctx, s.target, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := io.ReadFull(rc, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// openSource returns a reader of p that also implements io.ReaderAt when ranged reads are
// available.
func (p Path) openSource(ctx context.Context) (io.ReadCloser, error) {
	caps, err := p.fs.access.Capabilities(ctx, p.u)
	if err != nil {
		return nil, err
	}
	src := &source{ctx: ctx, access: p.fs.access, target: p.u}
	if caps.OpenRange != nil {
		return rangedSource{src}, nil
	}
	return src, nil
}

// ReadBytes returns the whole content of p. Small objects are read in one call, larger ones
// through concurrent ranged reads or the transfer manager, as the chunk policy selects.
func (p Path) ReadBytes(ctx context.Context) ([]byte, error) {
	start := time.Now()
	size, err := p.fs.access.Size(ctx, p.u)
	if err != nil {
		return nil, err
	}
	plan, b, release, err := p.fs.plan(ctx, p.u, size, types.DirectionRead)
	if err != nil {
		return nil, err
	}
	defer release()

	var data []byte
	switch plan.Strategy {
	case chunk.StrategyPlain:
		data, err = p.fs.access.CatFile(ctx, p.u)
	case chunk.StrategyManager:
		data, err = p.download(ctx, b, size)
	default:
		data, err = p.readConcurrent(ctx, plan)
	}
	if err != nil {
		return nil, err
	}
	p.fs.metrics.RecordTransfer(p.u.Scheme(), types.DirectionRead, int64(len(data)), time.Since(start))
	return data, nil
}

func (p Path) readConcurrent(ctx context.Context, plan chunk.Plan) ([]byte, error) {
	src, err := p.openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var buf bytes.Buffer
	buf.Grow(int(plan.Size))
	if _, err := chunk.RunPlan(ctx, plan, src, &buf); err != nil {
		return nil, p.transferError("read", err)
	}
	return buf.Bytes(), nil
}

func (p Path) download(ctx context.Context, b *bundle.Bundle, size int64) ([]byte, error) {
	tm, err := b.TransferManager(ctx)
	if err != nil {
		return nil, err
	}
	w := manager.NewWriteAtBuffer(make([]byte, 0, size))
	if _, err := tm.Download(ctx, p.u.Bucket(), p.u.Key(), w); err != nil {
		return nil, p.transferError("download", err)
	}
	return w.Bytes(), nil
}

// downloadFile has the transfer manager of b write p into the local file target.
func (p Path) downloadFile(ctx context.Context, b *bundle.Bundle, target string) error {
	tm, err := b.TransferManager(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return errors.TransferFailure(p.u.Scheme(), p.u.Native(), "download", err)
	}
	_, err = tm.Download(ctx, p.u.Bucket(), p.u.Key(), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(target)
		return p.transferError("download", err)
	}
	return nil
}

// transferError keeps coded errors and wraps anything else as a transfer failure.
func (p Path) transferError(op string, err error) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.TransferFailure(p.u.Scheme(), p.u.Native(), op, err)
}

// ReadText returns the content of p as a string.
func (p Path) ReadText(ctx context.Context) (string, error) {
	data, err := p.ReadBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Open returns a streaming reader of p.
func (p Path) Open(ctx context.Context) (io.ReadCloser, error) {
	return p.fs.access.Open(ctx, p.u)
}

// OpenRange returns a reader of length bytes at offset. A negative length reads to the end.
func (p Path) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return p.fs.access.OpenRange(ctx, p.u, offset, length)
}

// Lines iterates over the lines of p without their line endings. Iteration stops at the
// first error, which is yielded with an empty line.
func (p Path) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rc, err := p.Open(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", p.transferError("read", err))
		}
	}
}
