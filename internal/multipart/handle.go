package multipart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/utils"
)

// State is the lifecycle state of a Handle.
type State int

const (
	Uninitialized State = iota
	Buffering
	SingleShot
	MultipartActive
	LargeTransfer
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Buffering:
		return "buffering"
	case SingleShot:
		return "single_shot"
	case MultipartActive:
		return "multipart_active"
	case LargeTransfer:
		return "large_transfer"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further event is accepted.
func (s State) Terminal() bool {
	return s == Committed || s == Aborted
}

const (
	DefaultBlockSize   = 8 * utils.MiB
	DefaultConcurrency = 4
)

// Options configures a Handle.
type Options struct {
	Scheme string
	Bucket string
	Key    string

	// BlockSize is the part size; a flush uploads once this many bytes are buffered.
	BlockSize int64
	// PartMax bounds a merged trailing part. Zero is unlimited.
	PartMax int64
	// LargeThreshold switches the handle to LargeTransfer once that many bytes are
	// written and Manager is set. Zero disables the switch.
	LargeThreshold int64
	// Concurrency bounds parallel part uploads within one flush.
	Concurrency int

	Write backend.WriteOptions

	// Manager returns the bundle's transfer manager. Nil means the family has none.
	Manager ManagerFunc
	// Invalidate drops the listing cache of one ancestor path after commit.
	Invalidate func(path string)
	Tracker    *Tracker
	Observer   Observer
	Logger     *slog.Logger
	// OnDone runs once, under the handle lock, when the handle reaches Committed or Aborted.
	OnDone func()
}

// Handle is an open object-store file in write mode. It buffers writes, uploads block-sized
// parts once a block is buffered, and publishes the object atomically on Close.
//
// Every written byte stays in memory until the handle is terminal, uploaded parts included,
// so that a rejected completion can be replayed through the transfer manager. Writing an
// object through a Handle costs its full size in RAM.
type Handle struct {
	mu     sync.Mutex
	ctx    context.Context
	client Client
	opts   Options
	logger *slog.Logger

	state    State
	data     []byte // everything written; uploaded parts stay retained for LargeTransfer
	flushed  int64  // bytes of data already sent as parts
	uploadID string
	parts    []Part
	settled  bool
}

// NewHandle opens a write handle for bucket/key. ctx bounds every backend call the handle
// makes through Write and Close.
func NewHandle(ctx context.Context, client Client, opts Options) *Handle {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		ctx:    ctx,
		client: client,
		opts:   opts,
		logger: logger.With("component", "multipart", "scheme", opts.Scheme, "path", opts.Bucket+"/"+opts.Key),
		state:  Uninitialized,
	}
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Tell returns the number of bytes written so far.
func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.data))
}

// Parts returns the parts uploaded so far in part order.
func (h *Handle) Parts() []Part {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Part(nil), h.parts...)
}

// UploadID returns the multipart session id, or "" when none is open.
func (h *Handle) UploadID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploadID
}

// Write buffers p and uploads full blocks.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.settle()
	return h.onWrite(h.ctx, p)
}

// Flush uploads buffered full blocks.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.settle()
	return h.onFlush(h.ctx, false)
}

// Close commits the object.
func (h *Handle) Close() error {
	return h.Commit(h.ctx)
}

// Commit publishes the object under ctx.
func (h *Handle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.settle()
	return h.onCommit(ctx)
}

// Abort cancels the server-side session and discards the buffer. Aborting a terminal handle
// is a no-op.
func (h *Handle) Abort() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return nil
	}
	defer h.settle()
	return h.onAbort(h.ctx)
}

func (h *Handle) settle() {
	if h.settled || !h.state.Terminal() {
		return
	}
	h.settled = true
	if h.opts.OnDone != nil {
		h.opts.OnDone()
	}
}

func (h *Handle) path() string {
	return h.opts.Bucket + "/" + h.opts.Key
}

func (h *Handle) rejectTerminal(op string) error {
	return errors.InvalidState(h.path(), h.state.String(), op).WithPath(h.opts.Scheme, h.path())
}

var _ backend.WriteHandle = (*Handle)(nil)
