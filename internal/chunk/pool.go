package chunk

import (
	"sort"
	"sync"
)

// BytePool hands out chunk buffers from size buckets to reduce GC pressure
type BytePool struct {
	pools map[int]*sync.Pool
	sizes []int
}

// DefaultBucketSizes covers every default tier chunk size and common multipart part sizes.
var DefaultBucketSizes = []int{
	8 << 10,   // 8KB, small tier
	64 << 10,  // 64KB, medium tier
	256 << 10, // 256KB, large tier
	1 << 20,   // 1MB, xlarge tier
	4 << 20,   // 4MB
	8 << 20,   // 8MB, transfer manager part size
	16 << 20,  // 16MB
}

// NewBytePool creates a byte pool with the given bucket sizes
func NewBytePool(sizes ...int) *BytePool {
	if len(sizes) == 0 {
		sizes = DefaultBucketSizes
	}
	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)

	pools := make(map[int]*sync.Pool, len(sorted))
	for _, size := range sorted {
		size := size
		pools[size] = &sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		}
	}

	return &BytePool{pools: pools, sizes: sorted}
}

// Get retrieves a byte slice of exactly size bytes backed by the smallest fitting bucket
func (p *BytePool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	for _, bucketSize := range p.sizes {
		if bucketSize >= size {
			buf := p.pools[bucketSize].Get().(*[]byte)
			return (*buf)[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a byte slice to its bucket. Slices that did not come from the pool are dropped.
// The caller must not use buf afterwards.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	pool, ok := p.pools[capacity]
	if !ok {
		return
	}
	buf = buf[:capacity]
	clear(buf)
	pool.Put(&buf)
}

// Sizes returns the bucket sizes in ascending order
func (p *BytePool) Sizes() []int {
	return append([]int(nil), p.sizes...)
}

// Buffers is the pool used by the chunk engine
var Buffers = NewBytePool()
