package cloudpath

import (
	"context"
	"iter"

	"github.com/objectfs/cloudpath/internal/uri"
	"github.com/objectfs/cloudpath/pkg/types"
)

// native returns the path of a backend-native name on the backend of p.
func (p Path) native(name string) Path {
	if p.u.IsLocal() {
		return p.with(uri.Local(name))
	}
	return p.with(uri.Object(p.u.Scheme(), name))
}

func (p Path) paths(entries []types.FileInfo) []Path {
	out := make([]Path, len(entries))
	for i, e := range entries {
		out[i] = p.native(e.Name)
	}
	return out
}

// Ls returns the immediate children of the directory p. A file lists as itself.
func (p Path) Ls(ctx context.Context) ([]Path, error) {
	entries, err := p.fs.access.List(ctx, p.u)
	if err != nil {
		return nil, err
	}
	return p.paths(entries), nil
}

// LsInfo is Ls with the file info of every entry.
func (p Path) LsInfo(ctx context.Context) ([]types.FileInfo, error) {
	return p.fs.access.List(ctx, p.u)
}

// Iterdir iterates over the immediate children of p. A listing error is yielded once.
func (p Path) Iterdir(ctx context.Context) iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		entries, err := p.Ls(ctx)
		if err != nil {
			yield(Path{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Glob returns the paths below p matching pattern. "**" matches any number of directories.
func (p Path) Glob(ctx context.Context, pattern string) ([]Path, error) {
	matches, err := p.fs.access.Glob(ctx, p.u.Join(pattern))
	if err != nil {
		return nil, err
	}
	out := make([]Path, len(matches))
	for i, m := range matches {
		out[i] = p.native(m)
	}
	return out, nil
}

// Find returns every file below p, recursively.
func (p Path) Find(ctx context.Context) ([]Path, error) {
	entries, err := p.fs.access.Find(ctx, p.u)
	if err != nil {
		return nil, err
	}
	return p.paths(entries), nil
}

// Walk calls fn for every entry below p, parents before children. Returning fs.SkipDir
// from a directory skips its contents.
func (p Path) Walk(ctx context.Context, fn func(Path, types.FileInfo) error) error {
	return p.fs.access.Walk(ctx, p.u, func(info types.FileInfo) error {
		return fn(p.native(info.Name), info)
	})
}
