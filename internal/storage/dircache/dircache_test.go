package dircache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectfs/cloudpath/pkg/types"
)

func TestInvalidateDropsAncestors(t *testing.T) {
	c := New(0, 0)
	for _, dir := range []string{"", "bucket", "bucket/a", "bucket/a/b", "bucket/z"} {
		c.Put(dir, []types.FileInfo{{Name: dir + "/x"}})
	}

	c.Invalidate("bucket/a/b/")
	for _, dir := range []string{"", "bucket", "bucket/a", "bucket/a/b"} {
		_, ok := c.Get(dir)
		assert.False(t, ok, dir)
	}
	_, ok := c.Get("bucket/z")
	assert.True(t, ok)

	c.Invalidate("")
	assert.Zero(t, c.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(4, time.Minute)
	c.Put("/bucket/", []types.FileInfo{{Name: "bucket/a"}})

	got, ok := c.Get("bucket")
	assert.True(t, ok)
	got[0].Name = "mutated"

	again, _ := c.Get("bucket")
	assert.Equal(t, "bucket/a", again[0].Name)
}

func TestEntriesExpire(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Put("bucket", nil)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("bucket")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
