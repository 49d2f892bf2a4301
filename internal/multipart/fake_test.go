package multipart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/objectfs/cloudpath/internal/backend"
)

type fakeUpload struct {
	key   string
	parts map[int][]byte
}

// fakeClient is an in-memory Client with failure injection.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]*fakeUpload
	nextID   int
	aborted  []string
	puts     int
	creates  int
	failPart int   // part number whose upload fails
	complete error // returned by CompleteMultipart when set
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, uploads: map[string]*fakeUpload{}}
}

func (c *fakeClient) MakeBucket(context.Context, string) error { return nil }

func (c *fakeClient) CreateMultipart(_ context.Context, bucket, key string, _ backend.WriteOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.creates++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads[id] = &fakeUpload{key: bucket + "/" + key, parts: map[int][]byte{}}
	return id, nil
}

func (c *fakeClient) UploadPart(_ context.Context, _, _, uploadID string, number int, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number == c.failPart {
		return "", fmt.Errorf("connection reset uploading part %d", number)
	}
	u, ok := c.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("NoSuchUpload: %s", uploadID)
	}
	u.parts[number] = append([]byte(nil), data...)
	return fmt.Sprintf("etag-%d", number), nil
}

func (c *fakeClient) CompleteMultipart(_ context.Context, bucket, key, uploadID string, parts []Part) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete != nil {
		return c.complete
	}
	u, ok := c.uploads[uploadID]
	if !ok {
		return fmt.Errorf("NoSuchUpload: %s", uploadID)
	}
	sorted := append([]Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	var buf bytes.Buffer
	for _, p := range sorted {
		buf.Write(u.parts[p.Number])
	}
	c.objects[bucket+"/"+key] = buf.Bytes()
	delete(c.uploads, uploadID)
	return nil
}

func (c *fakeClient) AbortMultipart(_ context.Context, _, _, uploadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = append(c.aborted, uploadID)
	delete(c.uploads, uploadID)
	return nil
}

func (c *fakeClient) PutObject(_ context.Context, bucket, key string, data []byte, _ backend.WriteOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.objects[bucket+"/"+key] = append([]byte{}, data...)
	return nil
}

func (c *fakeClient) object(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.objects[path]
	return b, ok
}

// fakeManager uploads whole objects into a fakeClient.
type fakeManager struct {
	client  *fakeClient
	uploads int
	fail    error
}

func (m *fakeManager) Upload(_ context.Context, bucket, key string, r io.Reader, _ int64, _ backend.WriteOptions) error {
	if m.fail != nil {
		return m.fail
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.uploads++
	m.client.mu.Lock()
	m.client.objects[bucket+"/"+key] = data
	m.client.mu.Unlock()
	return nil
}

func (m *fakeManager) Download(_ context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	data, ok := m.client.object(bucket + "/" + key)
	if !ok {
		return 0, fmt.Errorf("NoSuchKey")
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func (m *fakeManager) Shutdown(context.Context) error { return nil }

func (m *fakeManager) factory() ManagerFunc {
	return func(context.Context) (TransferManager, error) { return m, nil }
}

type recordingObserver struct {
	mu        sync.Mutex
	parts     int
	commits   []State
	fallbacks []string
}

func (o *recordingObserver) ObservePart(string, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parts++
}

func (o *recordingObserver) ObserveCommit(_ string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commits = append(o.commits, s)
}

func (o *recordingObserver) ObserveFallback(_ string, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, reason)
}
