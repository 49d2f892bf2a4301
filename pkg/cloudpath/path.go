package cloudpath

import (
	"github.com/objectfs/cloudpath/internal/uri"
)

// Path is an immutable location on the local filesystem or in an object store. Algebra
// methods never perform I/O. Two paths are equal when their String forms are; use String as
// the map key.
type Path struct {
	u  uri.URI
	fs *FileSystem
}

func (p Path) with(u uri.URI) Path { return Path{u: u, fs: p.fs} }

// FileSystem returns the owning FileSystem.
func (p Path) FileSystem() *FileSystem { return p.fs }

// URI returns the canonical string form. It implements types.Target.
func (p Path) URI() string { return p.u.String() }

// String returns the canonical string form: "scheme://bucket/key" or a local path.
func (p Path) String() string { return p.u.String() }

// Raw returns the parsed URI.
func (p Path) Raw() uri.URI { return p.u }

// Equal reports whether p and o address the same location.
func (p Path) Equal(o Path) bool { return p.u.String() == o.u.String() }

// Scheme returns the lower-cased scheme, "file" for local paths.
func (p Path) Scheme() string { return p.u.Scheme() }

// IsLocal reports whether p addresses the local filesystem.
func (p Path) IsLocal() bool { return p.u.IsLocal() }

// Bucket returns the bucket of an object-store path, "" for local paths.
func (p Path) Bucket() string { return p.u.Bucket() }

// Key returns the object key below the bucket, or the filesystem path.
func (p Path) Key() string { return p.u.Key() }

// Name returns the final path component; for a bucket root, the bucket.
func (p Path) Name() string { return p.u.Name() }

// Stem returns Name without its final suffix.
func (p Path) Stem() string { return p.u.Stem() }

// Suffix returns the final extension of Name, dot included.
func (p Path) Suffix() string { return p.u.Suffix() }

// Suffixes returns every extension of Name, e.g. [".tar", ".gz"].
func (p Path) Suffixes() []string { return p.u.Suffixes() }

// Parts returns the path components.
func (p Path) Parts() []string { return p.u.Parts() }

// IsAbsolute reports whether p is rooted. Object-store paths always are.
func (p Path) IsAbsolute() bool { return p.u.IsAbsolute() }

// Native returns the backend-native form: "bucket/key" or the filesystem path.
func (p Path) Native() string { return p.u.Native() }

// Join appends path elements.
func (p Path) Join(elems ...string) Path { return p.with(p.u.Join(elems...)) }

// Parent returns the containing directory. A bucket is its own parent.
func (p Path) Parent() Path { return p.with(p.u.Parent()) }

// Parents returns every ancestor, nearest first.
func (p Path) Parents() []Path {
	ancestors := p.u.Ancestors()
	out := make([]Path, len(ancestors))
	for i, a := range ancestors {
		out[i] = p.with(a)
	}
	return out
}

// WithName returns p with its final component replaced.
func (p Path) WithName(name string) (Path, error) {
	u, err := p.u.WithName(name)
	if err != nil {
		return Path{}, err
	}
	return p.with(u), nil
}

// WithSuffix returns p with its final suffix replaced; an empty suffix removes it.
func (p Path) WithSuffix(suffix string) (Path, error) {
	u, err := p.u.WithSuffix(suffix)
	if err != nil {
		return Path{}, err
	}
	return p.with(u), nil
}

// RelativeTo returns the slash-separated path of p below base.
func (p Path) RelativeTo(base Path) (string, error) { return p.u.RelativeTo(base.u) }

// Match reports whether p matches a glob pattern; relative patterns match from the right.
func (p Path) Match(pattern string) bool { return p.u.Match(pattern) }
