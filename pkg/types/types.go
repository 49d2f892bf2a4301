package types

import (
	"io/fs"
	"path"
	"time"
)

// FileInfo describes a file or object as reported by any backend driver.
type FileInfo struct {
	// Name is the backend-native path ("bucket/key" for object stores, absolute path locally).
	Name         string            `json:"name"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	IsDir        bool              `json:"is_dir"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	StorageClass string            `json:"storage_class,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Mode         fs.FileMode       `json:"mode,omitempty"`
}

// BaseName returns the last element of Name.
func (fi FileInfo) BaseName() string {
	return path.Base(fi.Name)
}

// Type returns "directory" or "file".
func (fi FileInfo) Type() string {
	if fi.IsDir {
		return "directory"
	}
	return "file"
}

// Target is anything that can be addressed by a URI, such as a cloudpath.Path.
// Plain strings are accepted by the accessor alongside Target values.
type Target interface {
	URI() string
}

// Direction is the transfer direction a chunk plan is computed for.
type Direction string

const (
	DirectionRead  Direction = "read"
	DirectionWrite Direction = "write"
	DirectionCopy  Direction = "copy"
)

// UnknownSize marks a transfer whose total length is not known up front.
const UnknownSize int64 = -1

// Range represents a byte range.
type Range struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// End returns the exclusive end offset.
func (r Range) End() int64 {
	return r.Offset + r.Size
}

// SplitRanges divides size bytes into consecutive ranges of at most chunk bytes.
func SplitRanges(size, chunk int64) []Range {
	if size <= 0 || chunk <= 0 {
		return nil
	}
	ranges := make([]Range, 0, (size+chunk-1)/chunk)
	for off := int64(0); off < size; off += chunk {
		n := chunk
		if off+n > size {
			n = size - off
		}
		ranges = append(ranges, Range{Offset: off, Size: n})
	}
	return ranges
}
