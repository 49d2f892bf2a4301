// Package dircache caches directory listings of object-store drivers.
package dircache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/objectfs/cloudpath/pkg/types"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 5 * time.Minute
)

// Cache maps a directory path ("bucket/prefix") to its listing. Entries expire after the
// TTL; writers invalidate the ancestors of anything they create or delete.
type Cache struct {
	lru *expirable.LRU[string, []types.FileInfo]
}

// New returns a cache of at most size listings. Non-positive arguments take the defaults.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, []types.FileInfo](size, nil, ttl)}
}

func normalize(dir string) string {
	return strings.Trim(dir, "/")
}

// Get returns a copy of the cached listing of dir.
func (c *Cache) Get(dir string) ([]types.FileInfo, bool) {
	entries, ok := c.lru.Get(normalize(dir))
	if !ok {
		return nil, false
	}
	return append([]types.FileInfo(nil), entries...), true
}

// Put stores the listing of dir.
func (c *Cache) Put(dir string, entries []types.FileInfo) {
	c.lru.Add(normalize(dir), append([]types.FileInfo(nil), entries...))
}

// Invalidate drops path and every ancestor of it. The empty path clears the cache.
func (c *Cache) Invalidate(path string) {
	p := normalize(path)
	if p == "" {
		c.lru.Purge()
		return
	}
	for {
		c.lru.Remove(p)
		i := strings.LastIndex(p, "/")
		if i < 0 {
			break
		}
		p = p[:i]
	}
	c.lru.Remove("")
}

// Len returns the number of cached listings.
func (c *Cache) Len() int {
	return c.lru.Len()
}
