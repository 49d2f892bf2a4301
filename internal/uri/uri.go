// Package uri implements the pure path algebra shared by every backend family.
//
// A URI is either "scheme://bucket/key..." for object stores or a bare local path,
// which implicitly uses the "file" scheme. Nothing in this package performs I/O.
package uri

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/objectfs/cloudpath/pkg/errors"
)

// LocalScheme is the scheme of bare filesystem paths.
const LocalScheme = "file"

const separator = "://"

// URI is an immutable parsed location.
type URI struct {
	scheme string
	// path is slash separated and cleaned. For object stores it is "bucket/key..." without
	// a leading slash; for local paths it is the filesystem path.
	path string
}

// Parse splits raw into scheme and backend-native path.
func Parse(raw string) (URI, error) {
	if raw == "" {
		return URI{}, errors.PathInvalid(raw, "empty path")
	}

	idx := strings.Index(raw, separator)
	if idx < 0 {
		return Local(raw), nil
	}

	scheme := strings.ToLower(raw[:idx])
	rest := raw[idx+len(separator):]
	if scheme == "" {
		return URI{}, errors.PathInvalid(raw, "missing scheme")
	}
	if strings.ContainsAny(scheme, "/ ") {
		return URI{}, errors.PathInvalid(raw, "malformed scheme")
	}

	if scheme == LocalScheme {
		if rest == "" {
			return URI{}, errors.PathInvalid(raw, "missing local path")
		}
		return Local(rest), nil
	}

	rest = strings.Trim(rest, "/")
	if rest == "" {
		return URI{}, errors.PathInvalid(raw, "missing bucket")
	}
	cleaned := path.Clean(rest)
	if bucket, _, _ := strings.Cut(cleaned, "/"); bucket == "." || bucket == ".." {
		return URI{}, errors.PathInvalid(raw, "path leaves the bucket")
	}
	return URI{scheme: scheme, path: cleaned}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) URI {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Local returns the file-scheme URI for a filesystem path.
func Local(p string) URI {
	return URI{scheme: LocalScheme, path: path.Clean(filepath.ToSlash(p))}
}

// Object builds an object-store URI from its components.
func Object(scheme, bucket string, key ...string) URI {
	return URI{scheme: strings.ToLower(scheme), path: path.Clean(path.Join(append([]string{bucket}, key...)...))}
}

// Scheme returns the lower-cased scheme, "file" for local paths.
func (u URI) Scheme() string { return u.scheme }

// IsLocal reports whether u addresses the local filesystem.
func (u URI) IsLocal() bool { return u.scheme == LocalScheme }

// IsZero reports whether u is the zero value.
func (u URI) IsZero() bool { return u.scheme == "" }

// Native returns the path in the form backend drivers expect: "bucket/key" for object
// stores and the filesystem path for local URIs.
func (u URI) Native() string {
	if u.IsLocal() {
		return filepath.FromSlash(u.path)
	}
	return u.path
}

// String returns the canonical form. Local URIs render as bare paths.
func (u URI) String() string {
	if u.IsZero() {
		return ""
	}
	if u.IsLocal() {
		return filepath.FromSlash(u.path)
	}
	return u.scheme + separator + u.path
}

// URI implements types.Target.
func (u URI) URI() string { return u.String() }

// Bucket returns the first path element of an object-store URI.
func (u URI) Bucket() string {
	if u.IsLocal() {
		return ""
	}
	bucket, _, _ := strings.Cut(u.path, "/")
	return bucket
}

// Key returns the object key (everything after the bucket), or the path for local URIs.
func (u URI) Key() string {
	if u.IsLocal() {
		return u.path
	}
	_, key, _ := strings.Cut(u.path, "/")
	return key
}

// IsAbsolute reports whether u is rooted. Object-store URIs always are.
func (u URI) IsAbsolute() bool {
	if u.IsLocal() {
		return path.IsAbs(u.path)
	}
	return true
}

// IsRoot reports whether u has no parent: a bucket, "/" or ".".
func (u URI) IsRoot() bool {
	return u.Parent() == u
}

// Parts returns the path components. Absolute local paths start with "/".
func (u URI) Parts() []string {
	if u.path == "." {
		return nil
	}
	if u.IsLocal() && path.IsAbs(u.path) {
		rest := strings.TrimPrefix(u.path, "/")
		if rest == "" {
			return []string{"/"}
		}
		return append([]string{"/"}, strings.Split(rest, "/")...)
	}
	return strings.Split(u.path, "/")
}

// Join appends path elements. Empty elements are ignored and leading slashes on object
// keys are dropped; a rooted element replaces a local path.
func (u URI) Join(elems ...string) URI {
	p := u.path
	for _, e := range elems {
		e = filepath.ToSlash(e)
		if e == "" {
			continue
		}
		if u.IsLocal() && path.IsAbs(e) {
			p = e
			continue
		}
		p = path.Join(p, strings.TrimLeft(e, "/"))
	}
	return URI{scheme: u.scheme, path: path.Clean(p)}
}

// Parent returns the containing directory. The parent of a bucket or filesystem root is itself.
func (u URI) Parent() URI {
	if !u.IsLocal() && !strings.Contains(u.path, "/") {
		return u
	}
	return URI{scheme: u.scheme, path: path.Dir(u.path)}
}

// Ancestors returns every parent from the immediate one up to the root.
func (u URI) Ancestors() []URI {
	var out []URI
	for cur, p := u, u.Parent(); p != cur; cur, p = p, p.Parent() {
		out = append(out, p)
	}
	return out
}

// Name returns the final path component, or "" for a bucket or filesystem root.
func (u URI) Name() string {
	if u.IsRoot() {
		if u.IsLocal() {
			return ""
		}
		return u.Bucket()
	}
	return path.Base(u.path)
}

// Suffix returns the final extension of Name including the dot, e.g. ".gz".
func (u URI) Suffix() string {
	name := u.Name()
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

// Suffixes returns every extension of Name, e.g. [".tar", ".gz"].
func (u URI) Suffixes() []string {
	name := u.Name()
	if strings.HasSuffix(name, ".") {
		return nil
	}
	name = strings.TrimLeft(name, ".")
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		out = append(out, "."+p)
	}
	return out
}

// Stem returns Name without its final suffix.
func (u URI) Stem() string {
	return strings.TrimSuffix(u.Name(), u.Suffix())
}

// WithName returns u with its final component replaced.
func (u URI) WithName(name string) (URI, error) {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return URI{}, errors.PathInvalid(u.String(), fmt.Sprintf("invalid name %q", name))
	}
	if u.IsRoot() {
		return URI{}, errors.PathInvalid(u.String(), "path has an empty name")
	}
	return u.Parent().Join(name), nil
}

// WithSuffix returns u with its final suffix replaced; an empty suffix removes it.
func (u URI) WithSuffix(suffix string) (URI, error) {
	if suffix != "" && (!strings.HasPrefix(suffix, ".") || suffix == "." || strings.Contains(suffix, "/")) {
		return URI{}, errors.PathInvalid(u.String(), fmt.Sprintf("invalid suffix %q", suffix))
	}
	return u.WithName(u.Stem() + suffix)
}

// RelativeTo returns the slash-separated path of u below base.
func (u URI) RelativeTo(base URI) (string, error) {
	if u.scheme != base.scheme {
		return "", errors.PathInvalid(u.String(), fmt.Sprintf("not under %s", base))
	}
	if u.path == base.path {
		return ".", nil
	}
	prefix := strings.TrimSuffix(base.path, "/") + "/"
	if !strings.HasPrefix(u.path, prefix) {
		return "", errors.PathInvalid(u.String(), fmt.Sprintf("not under %s", base))
	}
	return strings.TrimPrefix(u.path, prefix), nil
}

// Match reports whether u matches a glob pattern. A relative pattern matches from the
// right, an absolute one ("scheme://..." or "/...") must match the whole path.
func (u URI) Match(pattern string) bool {
	if pattern == "" {
		return false
	}

	var pparts []string
	absolute := false
	if strings.Contains(pattern, separator) {
		p, err := Parse(pattern)
		if err != nil || p.scheme != u.scheme {
			return false
		}
		pparts, absolute = p.Parts(), true
	} else {
		pattern = filepath.ToSlash(pattern)
		if path.IsAbs(pattern) {
			if !u.IsLocal() {
				return false
			}
			absolute = true
		}
		pparts = Local(pattern).Parts()
	}

	uparts := u.Parts()
	if absolute && len(pparts) != len(uparts) {
		return false
	}
	if len(pparts) > len(uparts) {
		return false
	}

	offset := len(uparts) - len(pparts)
	for i, pp := range pparts {
		ok, err := path.Match(pp, uparts[offset+i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}
