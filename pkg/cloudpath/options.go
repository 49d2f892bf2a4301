package cloudpath

import (
	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/pkg/types"
)

// WriteOption customizes writes and copies.
type WriteOption func(*writeOptions)

type writeOptions struct {
	overwrite *bool
	write     backend.WriteOptions
}

func newWriteOptions(opts []WriteOption) writeOptions {
	o := writeOptions{write: backend.WriteOptions{SizeHint: types.UnknownSize}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// allowOverwrite resolves the overwrite flag against the verb's default.
func (o writeOptions) allowOverwrite(def bool) bool {
	if o.overwrite == nil {
		return def
	}
	return *o.overwrite
}

// Overwrite controls whether an existing destination may be replaced. Write verbs default to
// true; Copy, CopyTo, Move and Localize default to false.
func Overwrite(allow bool) WriteOption {
	return func(o *writeOptions) { o.overwrite = &allow }
}

// ContentType sets the content type of the written object.
func ContentType(ct string) WriteOption {
	return func(o *writeOptions) { o.write.ContentType = ct }
}

// StorageClass sets the storage class of the written object.
func StorageClass(class string) WriteOption {
	return func(o *writeOptions) { o.write.StorageClass = class }
}

// Metadata attaches user metadata to the written object.
func Metadata(md map[string]string) WriteOption {
	return func(o *writeOptions) {
		if o.write.Metadata == nil {
			o.write.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			o.write.Metadata[k] = v
		}
	}
}

// SizeHint announces the total size of a Create stream.
func SizeHint(size int64) WriteOption {
	return func(o *writeOptions) { o.write.SizeHint = size }
}
