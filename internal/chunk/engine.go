package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/sourcegraph/conc/stream"

	"github.com/objectfs/cloudpath/pkg/types"
)

// Stream is the consumer side of a ReadChunks pipeline.
type Stream struct {
	ch      chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	buffers *BytePool
}

// ReadChunks starts a producer goroutine reading chunkSize pieces of r into a channel of
// capacity maxConcurrent. The producer stops at EOF, on a read error or when ctx is done.
// Callers must either drain the stream with Next or call Close.
func ReadChunks(ctx context.Context, r io.Reader, chunkSize int, maxConcurrent int) *Stream {
	if chunkSize <= 0 {
		chunkSize = 64 << 10
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ch:      make(chan []byte, maxConcurrent),
		cancel:  cancel,
		done:    make(chan struct{}),
		buffers: Buffers,
	}
	go s.produce(ctx, r, chunkSize)
	return s
}

func (s *Stream) produce(ctx context.Context, r io.Reader, chunkSize int) {
	defer close(s.done)
	defer close(s.ch)

	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return
		}

		buf := s.buffers.Get(chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			select {
			case s.ch <- buf[:n]:
			case <-ctx.Done():
				s.buffers.Put(buf)
				s.err = ctx.Err()
				return
			}
		} else {
			s.buffers.Put(buf)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return
		default:
			s.err = fmt.Errorf("chunk producer: %w", err)
			return
		}
	}
}

// Next returns the next chunk in order. After the last chunk it returns io.EOF, or the
// producer's error if it failed. The chunk may be handed back with Release once consumed.
func (s *Stream) Next() ([]byte, error) {
	buf, ok := <-s.ch
	if ok {
		return buf, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// Chunks exposes the underlying channel. It is closed when the producer stops; Err reports
// why once it is closed.
func (s *Stream) Chunks() <-chan []byte { return s.ch }

// Err returns the producer error after the channel is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Release returns a chunk to the engine buffer pool.
func (s *Stream) Release(buf []byte) { s.buffers.Put(buf) }

// Close stops the producer and discards any queued chunks.
func (s *Stream) Close() {
	s.cancel()
	for buf := range s.ch {
		s.buffers.Put(buf)
	}
	<-s.done
}

// WriteChunks consumes src in order and writes every chunk to w, returning the number of
// bytes written. When w is an io.WriterAt, up to maxConcurrent chunks are written in
// parallel at their offsets. On failure src is drained so the producer is never left
// blocked, then the error is returned.
func WriteChunks(ctx context.Context, w io.Writer, src <-chan []byte, maxConcurrent int) (int64, error) {
	return writeChunks(ctx, w, src, maxConcurrent, nil, nil)
}

// writeChunks is WriteChunks with a buffer release hook and an abort hook that is called
// before draining so the producer can stop early.
func writeChunks(ctx context.Context, w io.Writer, src <-chan []byte, maxConcurrent int, release func([]byte), abort func()) (int64, error) {
	if release == nil {
		release = func([]byte) {}
	}
	if abort == nil {
		abort = func() {}
	}
	if wa, ok := w.(io.WriterAt); ok && maxConcurrent > 1 {
		return writeChunksAt(ctx, wa, src, maxConcurrent, release, abort)
	}

	var written int64
	for buf := range src {
		if err := ctx.Err(); err != nil {
			release(buf)
			abort()
			drain(src, release)
			return written, err
		}
		n, err := w.Write(buf)
		written += int64(n)
		release(buf)
		if err == nil && n < len(buf) {
			err = io.ErrShortWrite
		}
		if err != nil {
			abort()
			drain(src, release)
			return written, fmt.Errorf("chunk consumer: %w", err)
		}
	}
	return written, ctx.Err()
}

// writeChunksAt writes chunks at their offsets from zero.
func writeChunksAt(ctx context.Context, w io.WriterAt, src <-chan []byte, maxConcurrent int, release func([]byte), abort func()) (int64, error) {
	p := pool.New().WithMaxGoroutines(maxConcurrent).WithContext(ctx).WithCancelOnError().WithFirstError()

	var (
		offset  int64
		written atomic.Int64
		failed  atomic.Bool
		once    sync.Once
	)
	for buf := range src {
		if failed.Load() || ctx.Err() != nil {
			once.Do(abort)
			release(buf)
			continue
		}
		buf, off := buf, offset
		offset += int64(len(buf))
		p.Go(func(ctx context.Context) error {
			defer release(buf)
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := w.WriteAt(buf, off)
			written.Add(int64(n))
			if err != nil {
				failed.Store(true)
				once.Do(abort)
				return fmt.Errorf("chunk consumer at offset %d: %w", off, err)
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return written.Load(), err
	}
	return written.Load(), ctx.Err()
}

func drain(src <-chan []byte, release func([]byte)) {
	for buf := range src {
		release(buf)
	}
}

// ReadRanges reads size bytes of ra in chunkSize ranges, up to maxConcurrent at a time, and
// calls yield with each range in offset order. yield must not retain the slice. The first
// read or yield error stops outstanding work and is returned.
func ReadRanges(ctx context.Context, ra io.ReaderAt, size, chunkSize int64, maxConcurrent int, yield func([]byte) error) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	s := stream.New().WithMaxGoroutines(maxConcurrent)
	for _, rg := range types.SplitRanges(size, chunkSize) {
		if ctx.Err() != nil {
			break
		}
		rg := rg
		s.Go(func() stream.Callback {
			if ctx.Err() != nil {
				return func() {}
			}
			buf := Buffers.Get(int(rg.Size))
			n, err := ra.ReadAt(buf, rg.Offset)
			if int64(n) == rg.Size {
				err = nil
			} else if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return func() {
				defer Buffers.Put(buf)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					fail(fmt.Errorf("read range %d-%d: %w", rg.Offset, rg.End(), err))
					return
				}
				if err := yield(buf[:n]); err != nil {
					fail(err)
				}
			}
		})
	}
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// CopyConcurrent streams r into w through a ReadChunks producer and a WriteChunks consumer.
func CopyConcurrent(ctx context.Context, r io.Reader, w io.Writer, chunkSize, maxConcurrent int) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := ReadChunks(ctx, r, chunkSize, maxConcurrent)
	written, werr := writeChunks(ctx, w, s.ch, maxConcurrent, s.Release, cancel)
	if werr != nil {
		s.Close()
		return written, werr
	}
	if err := s.Err(); err != nil {
		return written, err
	}
	return written, nil
}

// CopyRanges copies size bytes of ra into w using parallel ranged reads.
func CopyRanges(ctx context.Context, ra io.ReaderAt, size int64, w io.Writer, chunkSize int64, maxConcurrent int) (int64, error) {
	var written int64
	err := ReadRanges(ctx, ra, size, chunkSize, maxConcurrent, func(b []byte) error {
		n, err := w.Write(b)
		written += int64(n)
		if err == nil && n < len(b) {
			err = io.ErrShortWrite
		}
		return err
	})
	return written, err
}

// RunPlan copies r into w according to plan. Plain plans use a single io.CopyBuffer with a
// plan-sized buffer; concurrent plans run CopyConcurrent, or CopyRanges when r is an
// io.ReaderAt of known size. Manager plans are executed by the caller.
func RunPlan(ctx context.Context, plan Plan, r io.Reader, w io.Writer) (int64, error) {
	switch plan.Strategy {
	case StrategyConcurrent:
		if ra, ok := r.(io.ReaderAt); ok && plan.Size > 0 {
			return CopyRanges(ctx, ra, plan.Size, w, plan.ChunkSize, plan.Concurrency)
		}
		return CopyConcurrent(ctx, r, w, int(plan.ChunkSize), plan.Concurrency)
	default:
		buf := Buffers.Get(int(plan.BufferSize))
		defer Buffers.Put(buf)
		return io.CopyBuffer(w, &ctxReader{ctx: ctx, r: r}, buf)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
