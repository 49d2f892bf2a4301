// Package local is the driver of the file scheme, built on go-billy's OS filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/objectfs/cloudpath/internal/backend"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

const scheme = "file"

// Driver serves local paths. Relative paths resolve against the working directory.
type Driver struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// New returns a driver over the whole OS filesystem.
func New() *Driver {
	return NewWithFS(osfs.New("/"))
}

// NewWithFS returns a driver over fsys, which must accept absolute paths.
func NewWithFS(fsys billy.Filesystem) *Driver {
	return &Driver{
		fs:     fsys,
		logger: slog.Default().With("component", "local-driver"),
	}
}

func abs(p string) (string, error) {
	a, err := filepath.Abs(p)
	if err != nil {
		return "", errors.PathInvalid(p, err.Error())
	}
	return a, nil
}

func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return errors.NotFound(scheme, path, err).WithOperation(op)
	case os.IsExist(err):
		return errors.DestinationExists(scheme, path).WithCause(err).WithOperation(op)
	case os.IsPermission(err):
		return errors.NewError(errors.ErrCodeAccessDenied, "permission denied").
			WithPath(scheme, path).WithCause(err).WithOperation(op)
	default:
		return errors.TransferFailure(scheme, path, op, err)
	}
}

func toFileInfo(name string, fi os.FileInfo) types.FileInfo {
	return types.FileInfo{
		Name:         name,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		IsDir:        fi.IsDir(),
		Mode:         fi.Mode(),
	}
}

// Stat returns the metadata of path.
func (d *Driver) Stat(_ context.Context, path string) (types.FileInfo, error) {
	p, err := abs(path)
	if err != nil {
		return types.FileInfo{}, err
	}
	fi, err := d.fs.Stat(p)
	if err != nil {
		return types.FileInfo{}, translateError("stat", p, err)
	}
	return toFileInfo(p, fi), nil
}

// List returns the entries of a directory, or the file itself.
func (d *Driver) List(ctx context.Context, path string) ([]types.FileInfo, error) {
	self, err := d.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if !self.IsDir {
		return []types.FileInfo{self}, nil
	}

	entries, err := d.fs.ReadDir(self.Name)
	if err != nil {
		return nil, translateError("ls", self.Name, err)
	}
	out := make([]types.FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFileInfo(d.fs.Join(self.Name, e.Name()), e))
	}
	return out, nil
}

// Glob expands pattern. Patterns with "**" are matched over a walk of their root.
func (d *Driver) Glob(ctx context.Context, pattern string) ([]string, error) {
	p, err := abs(pattern)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(p, "**") {
		matches, err := util.Glob(d.fs, p)
		if err != nil {
			return nil, errors.PathInvalid(pattern, err.Error())
		}
		sort.Strings(matches)
		return matches, nil
	}

	var out []string
	err = d.Walk(ctx, backend.GlobRoot(p), func(fi types.FileInfo) error {
		if backend.MatchGlob(p, fi.Name) {
			out = append(out, fi.Name)
		}
		return nil
	})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	sort.Strings(out)
	return out, err
}

// Walk visits every entry below root in lexical order.
func (d *Driver) Walk(ctx context.Context, root string, fn backend.WalkFunc) error {
	r, err := abs(root)
	if err != nil {
		return err
	}
	if _, err := d.fs.Stat(r); err != nil {
		return translateError("walk", r, err)
	}

	return util.Walk(d.fs, r, func(p string, info os.FileInfo, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			return translateError("walk", p, err)
		}
		if p == r {
			return nil
		}
		return fn(toFileInfo(p, info))
	})
}

// Open opens path for reading. The returned file also implements io.ReaderAt.
func (d *Driver) Open(_ context.Context, path string) (io.ReadCloser, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	f, err := d.fs.Open(p)
	if err != nil {
		return nil, translateError("open", p, err)
	}
	return f, nil
}

type sectionReadCloser struct {
	io.Reader
	io.Closer
}

// OpenRange opens length bytes of path starting at offset. A negative length reads to EOF.
func (d *Driver) OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	rc, err := d.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	f := rc.(billy.File)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, translateError("open_range", path, err)
	}
	if length < 0 {
		return f, nil
	}
	return sectionReadCloser{Reader: io.LimitReader(f, length), Closer: f}, nil
}

// Create opens path for writing. Bytes go to a temporary file in the target directory,
// renamed over path on Close.
func (d *Driver) Create(_ context.Context, path string, _ backend.WriteOptions) (backend.WriteHandle, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(p)
	if err := d.fs.MkdirAll(dir, 0750); err != nil {
		return nil, translateError("create", dir, err)
	}
	tmp, err := d.fs.TempFile(dir, ".cloudpath-")
	if err != nil {
		return nil, translateError("create", p, err)
	}
	return &fileHandle{fs: d.fs, tmp: tmp, target: p}, nil
}

type fileHandle struct {
	fs     billy.Filesystem
	tmp    billy.File
	target string
	done   bool
}

func (h *fileHandle) Write(p []byte) (int, error) {
	if h.done {
		return 0, errors.InvalidState(h.target, "closed", "write")
	}
	return h.tmp.Write(p)
}

func (h *fileHandle) Close() error {
	if h.done {
		return errors.InvalidState(h.target, "closed", "commit")
	}
	h.done = true
	if err := h.tmp.Close(); err != nil {
		_ = h.fs.Remove(h.tmp.Name())
		return translateError("commit", h.target, err)
	}
	if err := h.fs.Rename(h.tmp.Name(), h.target); err != nil {
		_ = h.fs.Remove(h.tmp.Name())
		return translateError("commit", h.target, err)
	}
	return nil
}

func (h *fileHandle) Abort() error {
	if h.done {
		return nil
	}
	h.done = true
	_ = h.tmp.Close()
	return h.fs.Remove(h.tmp.Name())
}

// CatFile returns the contents of path.
func (d *Driver) CatFile(_ context.Context, path string) ([]byte, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(d.fs, p)
	if err != nil {
		return nil, translateError("cat_file", p, err)
	}
	return data, nil
}

// PipeFile writes data to path, creating parent directories.
func (d *Driver) PipeFile(_ context.Context, path string, data []byte, _ backend.WriteOptions) error {
	p, err := abs(path)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return translateError("pipe_file", p, err)
	}
	if err := util.WriteFile(d.fs, p, data, 0644); err != nil {
		return translateError("pipe_file", p, err)
	}
	return nil
}

// Copy copies a single file.
func (d *Driver) Copy(ctx context.Context, src, dst string) error {
	in, err := d.Open(ctx, src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := d.Create(ctx, dst, backend.WriteOptions{})
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Abort()
		return translateError("copy", dst, err)
	}
	return out.Close()
}

// GetFile copies a local file to another local path.
func (d *Driver) GetFile(ctx context.Context, remote, local string) error {
	return d.Copy(ctx, remote, local)
}

// PutFile copies a local file to another local path.
func (d *Driver) PutFile(ctx context.Context, local, remote string, _ backend.WriteOptions) error {
	return d.Copy(ctx, local, remote)
}

// RemoveFile deletes a file.
func (d *Driver) RemoveFile(ctx context.Context, path string) error {
	fi, err := d.Stat(ctx, path)
	if err != nil {
		return err
	}
	if fi.IsDir {
		return errors.PathInvalid(path, "is a directory")
	}
	return translateError("rm_file", fi.Name, d.fs.Remove(fi.Name))
}

// RemoveAll deletes path and everything below it.
func (d *Driver) RemoveAll(_ context.Context, path string) error {
	p, err := abs(path)
	if err != nil {
		return err
	}
	if _, err := d.fs.Stat(p); err != nil {
		return translateError("rm", p, err)
	}
	return translateError("rm", p, util.RemoveAll(d.fs, p))
}

// Rmdir deletes an empty directory.
func (d *Driver) Rmdir(ctx context.Context, path string) error {
	fi, err := d.Stat(ctx, path)
	if err != nil {
		return err
	}
	if !fi.IsDir {
		return errors.PathInvalid(path, "not a directory")
	}
	entries, err := d.fs.ReadDir(fi.Name)
	if err != nil {
		return translateError("rmdir", fi.Name, err)
	}
	if len(entries) > 0 {
		return errors.PathInvalid(path, "directory not empty")
	}
	return translateError("rmdir", fi.Name, d.fs.Remove(fi.Name))
}

// Mkdir creates path and any missing parents.
func (d *Driver) Mkdir(ctx context.Context, path string) error {
	return d.MkdirAll(ctx, path)
}

// MkdirAll creates path and any missing parents.
func (d *Driver) MkdirAll(_ context.Context, path string) error {
	p, err := abs(path)
	if err != nil {
		return err
	}
	return translateError("makedirs", p, d.fs.MkdirAll(p, 0750))
}

// Touch creates an empty file or updates the modification time of an existing one.
func (d *Driver) Touch(ctx context.Context, path string) error {
	fi, err := d.Stat(ctx, path)
	if errors.IsNotFound(err) {
		return d.PipeFile(ctx, path, nil, backend.WriteOptions{})
	}
	if err != nil {
		return err
	}
	now := time.Now()
	if ch, ok := d.fs.(billy.Change); ok {
		return translateError("touch", fi.Name, ch.Chtimes(fi.Name, now, now))
	}
	return translateError("touch", fi.Name, os.Chtimes(fi.Name, now, now))
}

// Rename moves src to dst, creating the parent of dst.
func (d *Driver) Rename(_ context.Context, src, dst string) error {
	s, err := abs(src)
	if err != nil {
		return err
	}
	t, err := abs(dst)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(filepath.Dir(t), 0750); err != nil {
		return translateError("rename", t, err)
	}
	return translateError("rename", s, d.fs.Rename(s, t))
}

// Sign returns the file URL of path; local files need no signature.
func (d *Driver) Sign(_ context.Context, path string, _ time.Duration) (string, error) {
	p, err := abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(p), nil
}

// String implements fmt.Stringer.
func (d *Driver) String() string {
	return fmt.Sprintf("local(%s)", d.fs.Root())
}

