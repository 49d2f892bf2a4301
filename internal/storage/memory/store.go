// Package memory is the mem:// backend family: a process-local object store with native
// multipart primitives and a transfer manager, used by tests and embedders.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/smithy-go"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/internal/multipart"
)

type object struct {
	data         []byte
	modTime      time.Time
	etag         string
	contentType  string
	storageClass string
	metadata     map[string]string
}

type memBucket struct {
	created time.Time
	objects map[string]*object
	dirs    map[string]time.Time
}

type upload struct {
	bucket, key string
	opts        backend.WriteOptions
	parts       map[int][]byte
}

// Stats counts backend calls by kind.
type Stats struct {
	Puts           atomic.Int64
	Parts          atomic.Int64
	Completes      atomic.Int64
	Aborts         atomic.Int64
	ManagerUploads atomic.Int64
	Reads          atomic.Int64
}

// Writes returns the number of calls that created or changed object bytes.
func (s *Stats) Writes() int64 {
	return s.Puts.Load() + s.Parts.Load() + s.ManagerUploads.Load()
}

// Store is a thread-safe in-memory object store.
type Store struct {
	mu         sync.RWMutex
	buckets    map[string]*memBucket
	uploads    map[string]*upload
	nextUpload int
	equalParts bool

	Stats Stats
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		buckets: make(map[string]*memBucket),
		uploads: make(map[string]*upload),
	}
}

// SetEqualParts makes completion reject sessions whose non-trailing parts differ in size,
// the way R2 does.
func (s *Store) SetEqualParts(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equalParts = enabled
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// bucketLocked returns bucket, creating it when create is set.
func (s *Store) bucketLocked(name string, create bool) *memBucket {
	b, ok := s.buckets[name]
	if !ok && create {
		b = &memBucket{created: time.Now(), objects: map[string]*object{}, dirs: map[string]time.Time{}}
		s.buckets[name] = b
	}
	return b
}

func (s *Store) putLocked(bucket, key string, data []byte, opts backend.WriteOptions) {
	b := s.bucketLocked(bucket, true)
	md := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		md[k] = v
	}
	b.objects[key] = &object{
		data:         data,
		modTime:      time.Now(),
		etag:         etagOf(data),
		contentType:  opts.ContentType,
		storageClass: opts.StorageClass,
		metadata:     md,
	}
}

// MakeBucket creates bucket if missing.
func (s *Store) MakeBucket(_ context.Context, bucket string) error {
	if bucket == "" {
		return fmt.Errorf("bucket name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucketLocked(bucket, true)
	return nil
}

// PutObject stores data under bucket/key in one call.
func (s *Store) PutObject(_ context.Context, bucket, key string, data []byte, opts backend.WriteOptions) error {
	s.Stats.Puts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, key, append([]byte{}, data...), opts)
	return nil
}

// CreateMultipart opens a multipart session.
func (s *Store) CreateMultipart(_ context.Context, bucket, key string, opts backend.WriteOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUpload++
	id := fmt.Sprintf("mem-upload-%d", s.nextUpload)
	s.uploads[id] = &upload{bucket: bucket, key: key, opts: opts, parts: map[int][]byte{}}
	return id, nil
}

// UploadPart stores one part and returns its ETag.
func (s *Store) UploadPart(_ context.Context, _, _, uploadID string, number int, data []byte) (string, error) {
	s.Stats.Parts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "upload " + uploadID + " does not exist"}
	}
	u.parts[number] = append([]byte(nil), data...)
	return etagOf(data), nil
}

// CompleteMultipart assembles the listed parts into the object.
func (s *Store) CompleteMultipart(_ context.Context, bucket, key, uploadID string, parts []multipart.Part) error {
	s.Stats.Completes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "upload " + uploadID + " does not exist"}
	}

	sorted := append([]multipart.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var data []byte
	for i, p := range sorted {
		body, ok := u.parts[p.Number]
		if !ok || etagOf(body) != p.ETag {
			return &smithy.GenericAPIError{Code: "InvalidPart", Message: fmt.Sprintf("part %d was not uploaded", p.Number)}
		}
		if s.equalParts && i < len(sorted)-1 && len(body) != len(u.parts[sorted[0].Number]) {
			return &smithy.GenericAPIError{Code: "InvalidPart", Message: "All non-trailing parts must have the same length."}
		}
		data = append(data, body...)
	}

	s.putLocked(bucket, key, data, u.opts)
	delete(s.uploads, uploadID)
	return nil
}

// AbortMultipart drops a session and its parts.
func (s *Store) AbortMultipart(_ context.Context, _, _, uploadID string) error {
	s.Stats.Aborts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadID)
	return nil
}

// PendingUploads returns the number of open multipart sessions.
func (s *Store) PendingUploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

// Manager is the transfer manager of the memory family.
type Manager struct {
	store  *Store
	logger *slog.Logger
}

// NewManager returns a transfer manager writing into store.
func NewManager(store *Store) *Manager {
	return &Manager{store: store, logger: slog.Default().With("component", "memory-transfer-manager")}
}

// Upload stores the whole reader as one object.
func (m *Manager) Upload(_ context.Context, bucket, key string, r io.Reader, _ int64, opts backend.WriteOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.store.Stats.ManagerUploads.Add(1)
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.putLocked(bucket, key, data, opts)
	return nil
}

// Download writes the object into w.
func (m *Manager) Download(_ context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	m.store.mu.RLock()
	b := m.store.buckets[bucket]
	var obj *object
	if b != nil {
		obj = b.objects[key]
	}
	m.store.mu.RUnlock()
	if obj == nil {
		return 0, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "object " + bucket + "/" + key + " does not exist"}
	}
	m.store.Stats.Reads.Add(1)
	n, err := w.WriteAt(obj.data, 0)
	return int64(n), err
}

// Shutdown releases the manager.
func (m *Manager) Shutdown(context.Context) error {
	m.logger.Info("Shutting Down Memory Transfer Manager")
	return nil
}

var (
	_ multipart.Client          = (*Store)(nil)
	_ multipart.TransferManager = (*Manager)(nil)
)
