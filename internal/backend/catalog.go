package backend

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/objectfs/cloudpath/pkg/types"
)

// Op names a catalog operation.
type Op string

const (
	OpStat            Op = "stat"
	OpInfo            Op = "info"
	OpSize            Op = "size"
	OpExists          Op = "exists"
	OpIsDir           Op = "isdir"
	OpIsFile          Op = "isfile"
	OpModified        Op = "modified"
	OpList            Op = "ls"
	OpGlob            Op = "glob"
	OpFind            Op = "find"
	OpWalk            Op = "walk"
	OpOpen            Op = "open"
	OpOpenRange       Op = "open_range"
	OpCreate          Op = "create"
	OpCatFile         Op = "cat_file"
	OpPipeFile        Op = "pipe_file"
	OpCopy            Op = "copy"
	OpGetFile         Op = "get_file"
	OpPutFile         Op = "put_file"
	OpRemoveFile      Op = "rm_file"
	OpRemoveAll       Op = "rm"
	OpRmdir           Op = "rmdir"
	OpMkdir           Op = "mkdir"
	OpMakedirs        Op = "makedirs"
	OpTouch           Op = "touch"
	OpRename          Op = "rename"
	OpChecksum        Op = "checksum"
	OpURL             Op = "url"
	OpSetXattr        Op = "setxattr"
	OpInvalidateCache Op = "invalidate_cache"
)

// Capabilities is the resolved operation set of one driver. A nil field means no alias
// matched and the operation is unsupported.
type Capabilities struct {
	Stat            func(ctx context.Context, path string) (types.FileInfo, error)
	Info            func(ctx context.Context, path string) (types.FileInfo, error)
	Size            func(ctx context.Context, path string) (int64, error)
	Exists          func(ctx context.Context, path string) (bool, error)
	IsDir           func(ctx context.Context, path string) (bool, error)
	IsFile          func(ctx context.Context, path string) (bool, error)
	Modified        func(ctx context.Context, path string) (time.Time, error)
	List            func(ctx context.Context, path string) ([]types.FileInfo, error)
	Glob            func(ctx context.Context, pattern string) ([]string, error)
	Find            func(ctx context.Context, path string) ([]types.FileInfo, error)
	Walk            func(ctx context.Context, path string, fn WalkFunc) error
	Open            func(ctx context.Context, path string) (io.ReadCloser, error)
	OpenRange       func(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	Create          func(ctx context.Context, path string, opts WriteOptions) (WriteHandle, error)
	CatFile         func(ctx context.Context, path string) ([]byte, error)
	PipeFile        func(ctx context.Context, path string, data []byte, opts WriteOptions) error
	Copy            func(ctx context.Context, src, dst string) error
	GetFile         func(ctx context.Context, remote, local string) error
	PutFile         func(ctx context.Context, local, remote string, opts WriteOptions) error
	RemoveFile      func(ctx context.Context, path string) error
	RemoveAll       func(ctx context.Context, path string) error
	Rmdir           func(ctx context.Context, path string) error
	Mkdir           func(ctx context.Context, path string) error
	Makedirs        func(ctx context.Context, path string) error
	Touch           func(ctx context.Context, path string) error
	Rename          func(ctx context.Context, src, dst string) error
	Checksum        func(ctx context.Context, path, algorithm string) (string, error)
	URL             func(ctx context.Context, path string, expiry time.Duration) (string, error)
	SetXattr        func(ctx context.Context, path string, attrs map[string]string) error
	InvalidateCache func(path string)

	resolved map[Op]string
}

// ResolvedAlias returns the alias bound to op, or "" when unsupported.
func (c *Capabilities) ResolvedAlias(op Op) string {
	return c.resolved[op]
}

// Unsupported lists the catalog operations without a binding, sorted.
func (c *Capabilities) Unsupported() []Op {
	var out []Op
	for _, op := range Ops() {
		if _, ok := c.resolved[op]; !ok {
			out = append(out, op)
		}
	}
	return out
}

// MarkBound records that op was bound outside the catalog under name. Bundles use it after
// attaching operations that need more than the driver, such as multipart writes.
func (c *Capabilities) MarkBound(op Op, name string) {
	if c.resolved == nil {
		c.resolved = map[Op]string{}
	}
	c.resolved[op] = name
}

// alias is one candidate binding for an operation.
type alias[F any] struct {
	name string
	bind func(driver any) (F, bool)
}

// method builds an alias satisfied by drivers implementing I.
func method[I any, F any](name string, adapt func(I) F) alias[F] {
	return alias[F]{
		name: name,
		bind: func(driver any) (F, bool) {
			impl, ok := driver.(I)
			if !ok {
				var zero F
				return zero, false
			}
			return adapt(impl), true
		},
	}
}

func names[F any](aliases []alias[F]) []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = a.name
	}
	return out
}

func bind[F any](c *Capabilities, op Op, driver any, aliases []alias[F], dst *F) {
	for _, a := range aliases {
		if fn, ok := a.bind(driver); ok {
			*dst = fn
			c.resolved[op] = a.name
			return
		}
	}
}

// Resolve binds every catalog operation of driver. It is called once per bundle.
func Resolve(driver any) Capabilities {
	c := Capabilities{resolved: make(map[Op]string)}
	if driver == nil {
		return c
	}
	bind(&c, OpStat, driver, statAliases, &c.Stat)
	bind(&c, OpInfo, driver, infoAliases, &c.Info)
	bind(&c, OpSize, driver, sizeAliases, &c.Size)
	bind(&c, OpExists, driver, existsAliases, &c.Exists)
	bind(&c, OpIsDir, driver, isDirAliases, &c.IsDir)
	bind(&c, OpIsFile, driver, isFileAliases, &c.IsFile)
	bind(&c, OpModified, driver, modifiedAliases, &c.Modified)
	bind(&c, OpList, driver, listAliases, &c.List)
	bind(&c, OpGlob, driver, globAliases, &c.Glob)
	bind(&c, OpFind, driver, findAliases, &c.Find)
	bind(&c, OpWalk, driver, walkAliases, &c.Walk)
	bind(&c, OpOpen, driver, openAliases, &c.Open)
	bind(&c, OpOpenRange, driver, openRangeAliases, &c.OpenRange)
	bind(&c, OpCreate, driver, createAliases, &c.Create)
	bind(&c, OpCatFile, driver, catAliases, &c.CatFile)
	bind(&c, OpPipeFile, driver, pipeAliases, &c.PipeFile)
	bind(&c, OpCopy, driver, copyAliases, &c.Copy)
	bind(&c, OpGetFile, driver, getAliases, &c.GetFile)
	bind(&c, OpPutFile, driver, putAliases, &c.PutFile)
	bind(&c, OpRemoveFile, driver, rmFileAliases, &c.RemoveFile)
	bind(&c, OpRemoveAll, driver, rmAliases, &c.RemoveAll)
	bind(&c, OpRmdir, driver, rmdirAliases, &c.Rmdir)
	bind(&c, OpMkdir, driver, mkdirAliases, &c.Mkdir)
	bind(&c, OpMakedirs, driver, makedirsAliases, &c.Makedirs)
	bind(&c, OpTouch, driver, touchAliases, &c.Touch)
	bind(&c, OpRename, driver, renameAliases, &c.Rename)
	bind(&c, OpChecksum, driver, checksumAliases, &c.Checksum)
	bind(&c, OpURL, driver, urlAliases, &c.URL)
	bind(&c, OpSetXattr, driver, setXattrAliases, &c.SetXattr)
	bind(&c, OpInvalidateCache, driver, invalidateAliases, &c.InvalidateCache)
	return c
}

// Aliases returns the ordered alias names tried for op.
func Aliases(op Op) []string {
	return append([]string(nil), aliasNames[op]...)
}

// Ops returns every catalog operation, sorted.
func Ops() []Op {
	out := make([]Op, 0, len(aliasNames))
	for op := range aliasNames {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var aliasNames = map[Op][]string{
	OpStat:            names(statAliases),
	OpInfo:            names(infoAliases),
	OpSize:            names(sizeAliases),
	OpExists:          names(existsAliases),
	OpIsDir:           names(isDirAliases),
	OpIsFile:          names(isFileAliases),
	OpModified:        names(modifiedAliases),
	OpList:            names(listAliases),
	OpGlob:            names(globAliases),
	OpFind:            names(findAliases),
	OpWalk:            names(walkAliases),
	OpOpen:            names(openAliases),
	OpOpenRange:       names(openRangeAliases),
	OpCreate:          names(createAliases),
	OpCatFile:         names(catAliases),
	OpPipeFile:        names(pipeAliases),
	OpCopy:            names(copyAliases),
	OpGetFile:         names(getAliases),
	OpPutFile:         names(putAliases),
	OpRemoveFile:      names(rmFileAliases),
	OpRemoveAll:       names(rmAliases),
	OpRmdir:           names(rmdirAliases),
	OpMkdir:           names(mkdirAliases),
	OpMakedirs:        names(makedirsAliases),
	OpTouch:           names(touchAliases),
	OpRename:          names(renameAliases),
	OpChecksum:        names(checksumAliases),
	OpURL:             names(urlAliases),
	OpSetXattr:        names(setXattrAliases),
	OpInvalidateCache: names(invalidateAliases),
}
