package backend

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cperrors "github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// treeDriver is a minimal driver exposing only Stat, List and CatFile.
type treeDriver struct {
	files map[string]string
}

func (d *treeDriver) Stat(_ context.Context, p string) (types.FileInfo, error) {
	if data, ok := d.files[p]; ok {
		return types.FileInfo{Name: p, Size: int64(len(data))}, nil
	}
	for k := range d.files {
		if strings.HasPrefix(k, p+"/") {
			return types.FileInfo{Name: p, IsDir: true}, nil
		}
	}
	return types.FileInfo{}, cperrors.NotFound("test", p, nil)
}

func (d *treeDriver) List(_ context.Context, p string) ([]types.FileInfo, error) {
	seen := map[string]bool{}
	var out []types.FileInfo
	for k, v := range d.files {
		if !strings.HasPrefix(k, p+"/") {
			continue
		}
		rest := strings.TrimPrefix(k, p+"/")
		child, _, nested := strings.Cut(rest, "/")
		name := p + "/" + child
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, types.FileInfo{Name: name, IsDir: nested, Size: int64(len(v))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *treeDriver) CatFile(_ context.Context, p string) ([]byte, error) {
	data, ok := d.files[p]
	if !ok {
		return nil, cperrors.NotFound("test", p, nil)
	}
	return []byte(data), nil
}

// infoOnly exposes Info but not Stat.
type infoOnly struct{}

func (infoOnly) Info(context.Context, string) (types.FileInfo, error) {
	return types.FileInfo{Name: "via-info"}, nil
}

// bothDriver exposes Stat and Info; Stat must win for OpStat.
type bothDriver struct{ infoOnly }

func (bothDriver) Stat(context.Context, string) (types.FileInfo, error) {
	return types.FileInfo{Name: "via-stat"}, nil
}

func newTree() *treeDriver {
	return &treeDriver{files: map[string]string{
		"b/a.txt":         "alpha",
		"b/dir/b.csv":     "beta",
		"b/dir/sub/c.csv": "gamma",
	}}
}

func TestResolveAliasOrder(t *testing.T) {
	ctx := context.Background()

	caps := Resolve(bothDriver{})
	fi, err := caps.Stat(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "via-stat", fi.Name)
	assert.Equal(t, "Stat", caps.ResolvedAlias(OpStat))

	info, err := caps.Info(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "via-info", info.Name)

	caps = Resolve(infoOnly{})
	fi, err = caps.Stat(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "via-info", fi.Name, "falls back to the next alias")
	assert.Equal(t, "Info", caps.ResolvedAlias(OpStat))
	assert.Nil(t, caps.List)
	assert.Contains(t, caps.Unsupported(), OpList)
}

func TestResolveNil(t *testing.T) {
	caps := Resolve(nil)
	assert.Nil(t, caps.Stat)
	assert.Len(t, caps.Unsupported(), len(Ops()))
}

func TestAliases(t *testing.T) {
	assert.Equal(t, []string{"Stat", "Info"}, Aliases(OpStat))
	assert.Equal(t, []string{"MkdirAll", "Makedirs"}, Aliases(OpMakedirs))
	assert.Equal(t, []string{"Sign", "PresignGet"}, Aliases(OpURL))
	assert.Nil(t, Aliases(Op("nonexistent")))
}

func TestDerivedOperations(t *testing.T) {
	ctx := context.Background()
	caps := Resolve(newTree())

	exists, err := caps.Exists(ctx, "b/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = caps.Exists(ctx, "b/missing")
	require.NoError(t, err)
	assert.False(t, exists)

	isDir, err := caps.IsDir(ctx, "b/dir")
	require.NoError(t, err)
	assert.True(t, isDir)

	isFile, err := caps.IsFile(ctx, "b/dir")
	require.NoError(t, err)
	assert.False(t, isFile)

	size, err := caps.Size(ctx, "b/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	rc, err := caps.Open(ctx, "b/a.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "alpha", string(data))

	sum, err := caps.Checksum(ctx, "b/a.txt", "md5")
	require.NoError(t, err)
	assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", sum)

	_, err = caps.Checksum(ctx, "b/a.txt", "crc64")
	assert.Error(t, err)

	assert.Equal(t, "List", caps.ResolvedAlias(OpWalk))
	assert.Equal(t, "CatFile", caps.ResolvedAlias(OpOpen))
}

func TestWalkFindGlobViaList(t *testing.T) {
	ctx := context.Background()
	caps := Resolve(newTree())

	var walked []string
	require.NoError(t, caps.Walk(ctx, "b", func(fi types.FileInfo) error {
		walked = append(walked, fi.Name)
		if fi.Name == "b/dir/sub" {
			return fs.SkipDir
		}
		return nil
	}))
	assert.Equal(t, []string{"b/a.txt", "b/dir", "b/dir/b.csv", "b/dir/sub"}, walked)

	found, err := caps.Find(ctx, "b")
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "b/dir/sub/c.csv", found[2].Name)

	matches, err := caps.Glob(ctx, "b/dir/*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/dir/b.csv"}, matches)

	matches, err = caps.Glob(ctx, "b/**/*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/dir/b.csv", "b/dir/sub/c.csv"}, matches)
}

// writerDriver implements Create only; PipeFile, PutFile and Touch derive from it.
type writerDriver struct {
	written map[string][]byte
}

type bufHandle struct {
	bytes.Buffer
	commit func([]byte)
}

func (h *bufHandle) Close() error { h.commit(h.Bytes()); return nil }
func (h *bufHandle) Abort() error { return nil }

func (d *writerDriver) Create(_ context.Context, p string, _ WriteOptions) (WriteHandle, error) {
	return &bufHandle{commit: func(b []byte) { d.written[p] = append([]byte(nil), b...) }}, nil
}

func TestDerivedWrites(t *testing.T) {
	ctx := context.Background()
	d := &writerDriver{written: map[string][]byte{}}
	caps := Resolve(d)

	require.NoError(t, caps.PipeFile(ctx, "b/k", []byte("payload"), WriteOptions{}))
	assert.Equal(t, "payload", string(d.written["b/k"]))

	local := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(local, []byte("from disk"), 0600))
	require.NoError(t, caps.PutFile(ctx, local, "b/up", WriteOptions{}))
	assert.Equal(t, "from disk", string(d.written["b/up"]))

	assert.Nil(t, caps.Touch, "Touch derives from PipeFile, not from Create")
	assert.Nil(t, caps.Copy)
}

func TestGetFileViaOpen(t *testing.T) {
	caps := Resolve(newTree())
	local := filepath.Join(t.TempDir(), "nested", "a.txt")
	require.NoError(t, caps.GetFile(context.Background(), "b/a.txt", local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestMarkBound(t *testing.T) {
	caps := Resolve(nil)
	caps.Create = func(context.Context, string, WriteOptions) (WriteHandle, error) { return nil, nil }
	caps.MarkBound(OpCreate, "multipart")
	assert.Equal(t, "multipart", caps.ResolvedAlias(OpCreate))
	assert.NotContains(t, caps.Unsupported(), OpCreate)
}
