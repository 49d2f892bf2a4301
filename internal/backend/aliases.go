package backend

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	cperrors "github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

type (
	statFn      = func(ctx context.Context, path string) (types.FileInfo, error)
	sizeFn      = func(ctx context.Context, path string) (int64, error)
	boolFn      = func(ctx context.Context, path string) (bool, error)
	timeFn      = func(ctx context.Context, path string) (time.Time, error)
	listFn      = func(ctx context.Context, path string) ([]types.FileInfo, error)
	globFn      = func(ctx context.Context, pattern string) ([]string, error)
	walkFn      = func(ctx context.Context, path string, fn WalkFunc) error
	openFn      = func(ctx context.Context, path string) (io.ReadCloser, error)
	openRangeFn = func(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	createFn    = func(ctx context.Context, path string, opts WriteOptions) (WriteHandle, error)
	catFn       = func(ctx context.Context, path string) ([]byte, error)
	pipeFn      = func(ctx context.Context, path string, data []byte, opts WriteOptions) error
	pairFn      = func(ctx context.Context, src, dst string) error
	putFn       = func(ctx context.Context, local, remote string, opts WriteOptions) error
	pathFn      = func(ctx context.Context, path string) error
	checksumFn  = func(ctx context.Context, path, algorithm string) (string, error)
	urlFn       = func(ctx context.Context, path string, expiry time.Duration) (string, error)
	xattrFn     = func(ctx context.Context, path string, attrs map[string]string) error
	invalidFn   = func(path string)
)

var statAliases = []alias[statFn]{
	method("Stat", func(d Stater) statFn { return d.Stat }),
	method("Info", func(d Infoer) statFn { return d.Info }),
}

var infoAliases = []alias[statFn]{
	method("Info", func(d Infoer) statFn { return d.Info }),
	method("Stat", func(d Stater) statFn { return d.Stat }),
}

var sizeAliases = []alias[sizeFn]{
	method("Size", func(d Sizer) sizeFn { return d.Size }),
	method("Stat", func(d Stater) sizeFn {
		return func(ctx context.Context, path string) (int64, error) {
			fi, err := d.Stat(ctx, path)
			return fi.Size, err
		}
	}),
}

var existsAliases = []alias[boolFn]{
	method("Exists", func(d Exister) boolFn { return d.Exists }),
	method("Stat", func(d Stater) boolFn {
		return func(ctx context.Context, path string) (bool, error) {
			_, err := d.Stat(ctx, path)
			if cperrors.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		}
	}),
}

var isDirAliases = []alias[boolFn]{
	method("IsDir", func(d DirChecker) boolFn { return d.IsDir }),
	method("Stat", func(d Stater) boolFn { return statPredicate(d.Stat, func(fi types.FileInfo) bool { return fi.IsDir }) }),
}

var isFileAliases = []alias[boolFn]{
	method("IsFile", func(d FileChecker) boolFn { return d.IsFile }),
	method("Stat", func(d Stater) boolFn { return statPredicate(d.Stat, func(fi types.FileInfo) bool { return !fi.IsDir }) }),
}

var modifiedAliases = []alias[timeFn]{
	method("Modified", func(d Modifier) timeFn { return d.Modified }),
	method("Stat", func(d Stater) timeFn {
		return func(ctx context.Context, path string) (time.Time, error) {
			fi, err := d.Stat(ctx, path)
			return fi.LastModified, err
		}
	}),
}

var listAliases = []alias[listFn]{
	method("List", func(d Lister) listFn { return d.List }),
	method("ReadDir", func(d DirReader) listFn { return d.ReadDir }),
}

var globAliases = []alias[globFn]{
	method("Glob", func(d Globber) globFn { return d.Glob }),
	method("Walk", func(d Walker) globFn { return globViaWalk(d.Walk) }),
	method("List", func(d Lister) globFn { return globViaWalk(walkViaList(d.List)) }),
}

var findAliases = []alias[listFn]{
	method("Find", func(d Finder) listFn { return d.Find }),
	method("Walk", func(d Walker) listFn { return findViaWalk(d.Walk) }),
	method("List", func(d Lister) listFn { return findViaWalk(walkViaList(d.List)) }),
}

var walkAliases = []alias[walkFn]{
	method("Walk", func(d Walker) walkFn { return d.Walk }),
	method("List", func(d Lister) walkFn { return walkViaList(d.List) }),
	method("ReadDir", func(d DirReader) walkFn { return walkViaList(d.ReadDir) }),
}

var openAliases = []alias[openFn]{
	method("Open", func(d Opener) openFn { return d.Open }),
	method("CatFile", func(d Catter) openFn {
		return func(ctx context.Context, path string) (io.ReadCloser, error) {
			data, err := d.CatFile(ctx, path)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}),
}

var openRangeAliases = []alias[openRangeFn]{
	method("OpenRange", func(d RangeOpener) openRangeFn { return d.OpenRange }),
}

var createAliases = []alias[createFn]{
	method("Create", func(d Creator) createFn { return d.Create }),
}

var catAliases = []alias[catFn]{
	method("CatFile", func(d Catter) catFn { return d.CatFile }),
	method("Open", func(d Opener) catFn {
		return func(ctx context.Context, path string) ([]byte, error) {
			rc, err := d.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}),
}

var pipeAliases = []alias[pipeFn]{
	method("PipeFile", func(d Piper) pipeFn { return d.PipeFile }),
	method("Create", func(d Creator) pipeFn {
		return func(ctx context.Context, path string, data []byte, opts WriteOptions) error {
			opts.SizeHint = int64(len(data))
			h, err := d.Create(ctx, path, opts)
			if err != nil {
				return err
			}
			return writeAndCommit(h, bytes.NewReader(data))
		}
	}),
}

var copyAliases = []alias[pairFn]{
	method("Copy", func(d Copier) pairFn { return d.Copy }),
}

var getAliases = []alias[pairFn]{
	method("GetFile", func(d Getter) pairFn { return d.GetFile }),
	method("Open", func(d Opener) pairFn {
		return func(ctx context.Context, remote, local string) error {
			rc, err := d.Open(ctx, remote)
			if err != nil {
				return err
			}
			defer rc.Close()
			return writeLocalFile(local, rc)
		}
	}),
}

var putAliases = []alias[putFn]{
	method("PutFile", func(d Putter) putFn { return d.PutFile }),
	method("Create", func(d Creator) putFn {
		return func(ctx context.Context, local, remote string, opts WriteOptions) error {
			f, err := os.Open(local)
			if err != nil {
				return cperrors.NotFound("file", local, err)
			}
			defer f.Close()
			if st, err := f.Stat(); err == nil {
				opts.SizeHint = st.Size()
			}
			h, err := d.Create(ctx, remote, opts)
			if err != nil {
				return err
			}
			return writeAndCommit(h, f)
		}
	}),
}

var rmFileAliases = []alias[pathFn]{
	method("RemoveFile", func(d FileRemover) pathFn { return d.RemoveFile }),
	method("Remove", func(d Remover) pathFn { return d.Remove }),
}

var rmAliases = []alias[pathFn]{
	method("RemoveAll", func(d RecursiveRemover) pathFn { return d.RemoveAll }),
}

var rmdirAliases = []alias[pathFn]{
	method("Rmdir", func(d DirRemover) pathFn { return d.Rmdir }),
	method("Remove", func(d Remover) pathFn { return d.Remove }),
}

var mkdirAliases = []alias[pathFn]{
	method("Mkdir", func(d DirMaker) pathFn { return d.Mkdir }),
}

var makedirsAliases = []alias[pathFn]{
	method("MkdirAll", func(d TreeMaker) pathFn { return d.MkdirAll }),
	method("Makedirs", func(d Makedirser) pathFn { return d.Makedirs }),
}

var touchAliases = []alias[pathFn]{
	method("Touch", func(d Toucher) pathFn { return d.Touch }),
	method("PipeFile", func(d Piper) pathFn {
		return func(ctx context.Context, path string) error {
			return d.PipeFile(ctx, path, nil, WriteOptions{})
		}
	}),
}

var renameAliases = []alias[pairFn]{
	method("Rename", func(d Renamer) pairFn { return d.Rename }),
	method("Move", func(d Mover) pairFn { return d.Move }),
}

var checksumAliases = []alias[checksumFn]{
	method("Checksum", func(d Checksummer) checksumFn { return d.Checksum }),
	method("Open", func(d Opener) checksumFn {
		return func(ctx context.Context, path, algorithm string) (string, error) {
			h, err := NewHash(algorithm)
			if err != nil {
				return "", err
			}
			rc, err := d.Open(ctx, path)
			if err != nil {
				return "", err
			}
			defer rc.Close()
			if _, err := io.Copy(h, rc); err != nil {
				return "", err
			}
			return hex.EncodeToString(h.Sum(nil)), nil
		}
	}),
}

var urlAliases = []alias[urlFn]{
	method("Sign", func(d Signer) urlFn { return d.Sign }),
	method("PresignGet", func(d Presigner) urlFn { return d.PresignGet }),
}

var setXattrAliases = []alias[xattrFn]{
	method("SetXattr", func(d XattrSetter) xattrFn { return d.SetXattr }),
	method("SetMetadata", func(d MetadataSetter) xattrFn { return d.SetMetadata }),
}

var invalidateAliases = []alias[invalidFn]{
	method("InvalidateCache", func(d CacheInvalidator) invalidFn { return d.InvalidateCache }),
}

// NewHash returns the hash for a checksum algorithm name. The empty name means md5.
func NewHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "", "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %q", algorithm)
	}
}

func statPredicate(stat statFn, pred func(types.FileInfo) bool) boolFn {
	return func(ctx context.Context, path string) (bool, error) {
		fi, err := stat(ctx, path)
		if cperrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return pred(fi), nil
	}
}

func writeAndCommit(h WriteHandle, r io.Reader) error {
	if _, err := io.Copy(h, r); err != nil {
		_ = h.Abort()
		return err
	}
	return h.Close()
}

func writeLocalFile(local string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(local), 0750); err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// walkViaList walks depth first over repeated listings.
func walkViaList(list listFn) walkFn {
	var walk walkFn
	walk = func(ctx context.Context, root string, fn WalkFunc) error {
		entries, err := list(ctx, root)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.Name == root {
				continue
			}
			err := fn(e)
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			if err != nil {
				return err
			}
			if e.IsDir {
				if err := walk(ctx, e.Name, fn); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk
}

func findViaWalk(walk walkFn) listFn {
	return func(ctx context.Context, root string) ([]types.FileInfo, error) {
		var out []types.FileInfo
		err := walk(ctx, root, func(fi types.FileInfo) error {
			if !fi.IsDir {
				out = append(out, fi)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
}

func globViaWalk(walk walkFn) globFn {
	return func(ctx context.Context, pattern string) ([]string, error) {
		root := GlobRoot(pattern)
		var out []string
		err := walk(ctx, root, func(fi types.FileInfo) error {
			if MatchGlob(pattern, fi.Name) {
				out = append(out, fi.Name)
			}
			return nil
		})
		if cperrors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		sort.Strings(out)
		return out, nil
	}
}
