package cloudpath

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudpath/pkg/errors"
)

// Loader decodes the raw content of a file.
type Loader func(ctx context.Context, data []byte) (any, error)

func (fs *FileSystem) registerBuiltinLoaders() {
	fs.RegisterLoader(".json", loadJSON)
	fs.RegisterLoader(".yaml", loadYAML)
	fs.RegisterLoader(".yml", loadYAML)
	fs.RegisterLoader(".txt", loadText)
}

// RegisterLoader sets the loader for files with extension ext (with or without the leading
// dot, case-insensitive), replacing any previous one.
func (fs *FileSystem) RegisterLoader(ext string, fn Loader) {
	ext = normalizeExt(ext)
	fs.loadersMu.Lock()
	defer fs.loadersMu.Unlock()
	fs.loaders[ext] = fn
}

func (fs *FileSystem) loader(ext string) (Loader, bool) {
	fs.loadersMu.RLock()
	defer fs.loadersMu.RUnlock()
	fn, ok := fs.loaders[normalizeExt(ext)]
	return fn, ok
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Load reads p and decodes it with the loader registered for its suffix. Files without a
// registered suffix are sniffed: JSON decodes as JSON, other text loads as a string and
// anything else is returned as raw bytes.
func (p Path) Load(ctx context.Context) (any, error) {
	data, err := p.ReadBytes(ctx)
	if err != nil {
		return nil, err
	}

	fn, ok := p.fs.loader(p.Suffix())
	if !ok {
		fn = sniff(data)
	}
	v, err := fn(ctx, data)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "cannot decode "+p.String()).
			WithPath(p.Scheme(), p.Native()).WithOperation("load").WithCause(err)
	}
	return v, nil
}

func sniff(data []byte) Loader {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/json"):
		return loadJSON
	case isText(mt):
		return loadText
	default:
		return func(_ context.Context, data []byte) (any, error) { return data, nil }
	}
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func loadJSON(_ context.Context, data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func loadYAML(_ context.Context, data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func loadText(_ context.Context, data []byte) (any, error) {
	return string(data), nil
}
