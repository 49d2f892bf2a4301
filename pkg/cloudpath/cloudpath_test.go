package cloudpath_test

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/storage/memory"
	"github.com/objectfs/cloudpath/pkg/cloudpath"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
	"github.com/objectfs/cloudpath/pkg/utils"
)

// smallConfig shrinks tiers and blocks so that every transfer strategy is reachable with
// payloads of a few kilobytes.
func smallConfig() *config.Configuration {
	cfg := config.NewDefault()
	cfg.Performance.Tiers = []config.TierConfig{
		{Name: "small", UpTo: 64, ChunkSize: 16, BufferSize: 32, Concurrency: 2},
		{Name: "medium", UpTo: 1024, ChunkSize: 128, BufferSize: 256, Concurrency: 2},
		{Name: "large", UpTo: 4096, ChunkSize: 256, BufferSize: 512, Concurrency: 4},
		{Name: "xlarge", ChunkSize: 512, BufferSize: 1024},
	}
	cfg.Performance.MultipartThreshold = utils.ByteSize(8 * utils.KiB)

	mem := config.DefaultProvider(config.KindMemory)
	mem.Write.Size = utils.ByteSize(utils.KiB)
	mem.Read.Size = utils.ByteSize(utils.KiB)
	mem.LargeFileSize = utils.ByteSize(16 * utils.KiB)
	cfg.Providers["mem"] = mem
	return cfg
}

func newFS(t *testing.T, cfg *config.Configuration) *cloudpath.FileSystem {
	t.Helper()
	if cfg == nil {
		cfg = smallConfig()
	}
	fsys, err := cloudpath.New(cfg,
		cloudpath.WithRegistryOptions(config.WithSetenv(func(string, string) error { return nil })))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsys.Close(context.Background()) })
	return fsys
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestPathAlgebra(t *testing.T) {
	fsys := newFS(t, nil)
	p := fsys.MustPath("mem://bucket/dir/archive.tar.gz")

	assert.Equal(t, "mem", p.Scheme())
	assert.Equal(t, "bucket", p.Bucket())
	assert.Equal(t, "dir/archive.tar.gz", p.Key())
	assert.Equal(t, "archive.tar.gz", p.Name())
	assert.Equal(t, "archive.tar", p.Stem())
	assert.Equal(t, ".gz", p.Suffix())
	assert.Equal(t, []string{".tar", ".gz"}, p.Suffixes())
	assert.Equal(t, "mem://bucket/dir", p.Parent().String())
	assert.Equal(t, "mem://bucket/dir/x/y", p.Parent().Join("x", "y").String())
	assert.True(t, p.Match("*.gz"))
	assert.True(t, p.IsAbsolute())

	renamed, err := p.WithName("other.txt")
	require.NoError(t, err)
	assert.Equal(t, "mem://bucket/dir/other.txt", renamed.String())

	rel, err := p.RelativeTo(fsys.MustPath("mem://bucket"))
	require.NoError(t, err)
	assert.Equal(t, "dir/archive.tar.gz", rel)

	same := fsys.MustPath("mem://bucket/dir/../dir/archive.tar.gz")
	assert.True(t, p.Equal(same))
	keys := map[string]bool{p.String(): true}
	assert.True(t, keys[same.String()])

	var parents []string
	for _, a := range p.Parents() {
		parents = append(parents, a.String())
	}
	assert.Equal(t, []string{"mem://bucket/dir", "mem://bucket"}, parents)

	local := fsys.MustPath("/tmp/data/file.txt")
	assert.True(t, local.IsLocal())
	assert.Equal(t, "file", local.Scheme())
}

func TestReadWriteRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		check func(t *testing.T, stats *memory.Stats)
	}{
		{"empty", 0, nil},
		{"below one block", 500, func(t *testing.T, stats *memory.Stats) {
			assert.Equal(t, int64(0), stats.Parts.Load())
		}},
		{"multipart", 5000, func(t *testing.T, stats *memory.Stats) {
			assert.GreaterOrEqual(t, stats.Parts.Load(), int64(2))
			assert.Equal(t, int64(1), stats.Completes.Load())
		}},
		{"large transfer", 20000, func(t *testing.T, stats *memory.Stats) {
			assert.Equal(t, int64(1), stats.ManagerUploads.Load())
			assert.Equal(t, int64(0), stats.Completes.Load())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fsys := newFS(t, nil)
			p := fsys.MustPath("mem://bucket/data.bin")
			data := payload(tt.size)

			require.NoError(t, p.WriteBytes(ctx, data))
			got, err := p.ReadBytes(ctx)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got), "content mismatch for %d bytes", tt.size)

			size, err := p.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), size)
			assert.Equal(t, 0, fsys.MemoryStore().PendingUploads())

			if tt.check != nil {
				tt.check(t, &fsys.MemoryStore().Stats)
			}
		})
	}
}

func TestTransferManagerWhenPreferred(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	mgr := cfg.Providers["mem"].Clone()
	mgr.Read.ManagerDefault = true
	mgr.Write.ManagerDefault = true
	cfg.Providers["memory"] = mgr
	fsys := newFS(t, cfg)

	p := fsys.MustPath("memory://bucket/big.bin")
	data := payload(10000)
	require.NoError(t, p.WriteBytes(ctx, data))
	assert.Equal(t, int64(1), fsys.MemoryStore().Stats.ManagerUploads.Load())
	assert.Equal(t, int64(0), fsys.MemoryStore().Stats.Parts.Load())

	got, err := p.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	local, err := p.Localize(ctx, t.TempDir())
	require.NoError(t, err)
	onDisk, err := os.ReadFile(local.Native())
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestCreateFallsBackWhenPartsAreUnequal(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	cfg.Providers["mem"].Extra[memory.ExtraEqualParts] = "true"
	fsys := newFS(t, cfg)
	stats := &fsys.MemoryStore().Stats

	p := fsys.MustPath("mem://bucket/uneven.bin")
	h, err := p.Create(ctx)
	require.NoError(t, err)

	// 1024 then a merged 1500 then 1024: the middle part breaks the equal-size rule.
	data := payload(1024 + 1500 + 1024)
	for _, r := range [][2]int{{0, 1024}, {1024, 2524}, {2524, 3548}} {
		_, err := h.Write(data[r[0]:r[1]])
		require.NoError(t, err)
	}
	require.NoError(t, h.Close())

	assert.Equal(t, int64(3), stats.Parts.Load())
	assert.Equal(t, int64(1), stats.Completes.Load())
	assert.Equal(t, int64(1), stats.ManagerUploads.Load())
	assert.Equal(t, 0, fsys.MemoryStore().PendingUploads())

	got, err := p.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDestinationGuards(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	stats := &fsys.MemoryStore().Stats

	src := fsys.MustPath("mem://bucket/src.txt")
	dst := fsys.MustPath("mem://bucket/dst.txt")
	require.NoError(t, src.WriteText(ctx, "source"))
	require.NoError(t, dst.WriteText(ctx, "existing"))
	localDst := fsys.Local(filepath.Join(t.TempDir(), "dst.txt"))
	require.NoError(t, localDst.WriteText(ctx, "local"))

	writes := stats.Writes()
	tests := []struct {
		name string
		run  func() error
	}{
		{"copy", func() error { return src.Copy(ctx, dst) }},
		{"copy to", func() error { return src.CopyTo(ctx, dst) }},
		{"copy across schemes", func() error { return src.Copy(ctx, localDst) }},
		{"move", func() error { return src.Move(ctx, dst) }},
		{"write without overwrite", func() error {
			return dst.WriteBytes(ctx, []byte("new"), cloudpath.Overwrite(false))
		}},
		{"create without overwrite", func() error {
			_, err := dst.Create(ctx, cloudpath.Overwrite(false))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDestinationExists)
		})
	}
	assert.Equal(t, writes, stats.Writes(), "guards must fail before any write")

	text, err := dst.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "existing", text)
	text, err = localDst.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", text)

	require.NoError(t, src.Copy(ctx, dst, cloudpath.Overwrite(true)))
	text, err = dst.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "source", text)

	require.NoError(t, dst.WriteText(ctx, "replaced"))
	text, err = dst.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "replaced", text)
}

func TestCopyToAcrossSchemes(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	data := payload(5000)

	remote := fsys.MustPath("mem://bucket/in/data.bin")
	require.NoError(t, remote.WriteBytes(ctx, data))

	local := fsys.Local(filepath.Join(t.TempDir(), "nested", "data.bin"))
	require.NoError(t, remote.CopyTo(ctx, local))
	onDisk, err := os.ReadFile(local.Native())
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	back := fsys.MustPath("mem://bucket/out/data.bin")
	require.NoError(t, local.Copy(ctx, back))
	got, err := back.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)

	a := fsys.MustPath("mem://bucket/a.txt")
	require.NoError(t, a.WriteText(ctx, "alpha"))

	b, err := a.Rename(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "mem://bucket/b.txt", b.String())
	ok, err := a.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	local := fsys.Local(filepath.Join(t.TempDir(), "b.txt"))
	require.NoError(t, b.Move(ctx, local))
	ok, err = b.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	text, err := local.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", text)
}

func TestTouchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)

	for _, p := range []cloudpath.Path{
		fsys.MustPath("mem://bucket/empty"),
		fsys.Local(filepath.Join(t.TempDir(), "empty")),
	} {
		t.Run(p.Scheme(), func(t *testing.T) {
			require.NoError(t, p.Touch(ctx))
			require.NoError(t, p.Touch(ctx))
			size, err := p.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), size)

			require.NoError(t, p.WriteText(ctx, "kept"))
			require.NoError(t, p.Touch(ctx))
			text, err := p.ReadText(ctx)
			require.NoError(t, err)
			assert.Equal(t, "kept", text)
		})
	}
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	root := fsys.MustPath("mem://bucket")
	for _, key := range []string{"a.txt", "dir/b.csv", "dir/sub/c.csv"} {
		require.NoError(t, root.Join(key).WriteText(ctx, key))
	}

	strs := func(paths []cloudpath.Path) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = p.String()
		}
		sort.Strings(out)
		return out
	}

	entries, err := root.Ls(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://bucket/a.txt", "mem://bucket/dir"}, strs(entries))

	var iterated []cloudpath.Path
	for p, err := range root.Iterdir(ctx) {
		require.NoError(t, err)
		iterated = append(iterated, p)
	}
	assert.Equal(t, strs(entries), strs(iterated))

	found, err := root.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://bucket/a.txt", "mem://bucket/dir/b.csv", "mem://bucket/dir/sub/c.csv"}, strs(found))

	matches, err := root.Glob(ctx, "**/*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://bucket/dir/b.csv", "mem://bucket/dir/sub/c.csv"}, strs(matches))

	var walked []string
	err = root.Walk(ctx, func(p cloudpath.Path, info types.FileInfo) error {
		if info.IsDir && p.Name() == "sub" {
			return fs.SkipDir
		}
		walked = append(walked, p.String())
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, walked, "mem://bucket/dir/b.csv")
	assert.NotContains(t, walked, "mem://bucket/dir/sub/c.csv")

	require.NoError(t, root.Join("dir").RemoveAll(ctx))
	found, err = root.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://bucket/a.txt"}, strs(found))
}

func TestLocalize(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	dir := t.TempDir()

	p := fsys.MustPath("mem://bucket/reports/q1.csv")
	require.NoError(t, p.WriteText(ctx, "a,b\n1,2\n"))

	local, err := p.Localize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bucket", "reports", "q1.csv"), local.Native())
	onDisk, err := os.ReadFile(local.Native())
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(onDisk))

	_, err = p.Localize(ctx, dir)
	assert.ErrorIs(t, err, errors.ErrDestinationExists)

	require.NoError(t, p.WriteText(ctx, "changed"))
	_, err = p.Localize(ctx, dir, cloudpath.Overwrite(true))
	require.NoError(t, err)
	onDisk, err = os.ReadFile(local.Native())
	require.NoError(t, err)
	assert.Equal(t, "changed", string(onDisk))

	same, err := local.Localize(ctx, t.TempDir())
	require.NoError(t, err)
	assert.True(t, same.Equal(local))
}

func TestLines(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	p := fsys.MustPath("mem://bucket/lines.txt")
	require.NoError(t, p.WriteText(ctx, "one\ntwo\r\nthree"))

	var lines []string
	for line, err := range p.Lines(ctx) {
		require.NoError(t, err)
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	for _, err := range fsys.MustPath("mem://bucket/missing.txt").Lines(ctx) {
		assert.True(t, errors.IsNotFound(err))
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	root := fsys.MustPath("mem://bucket/conf")

	write := func(name, body string) cloudpath.Path {
		p := root.Join(name)
		require.NoError(t, p.WriteText(ctx, body))
		return p
	}

	v, err := write("a.json", `{"name": "alpha", "n": 2}`).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "alpha", "n": float64(2)}, v)

	v, err = write("b.yaml", "name: beta\n").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "beta", v.(map[interface{}]interface{})["name"])

	v, err = write("c.txt", "plain text").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain text", v)

	v, err = write("noext", `{"sniffed": true}`).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sniffed": true}, v)

	fsys.RegisterLoader("CSV", func(_ context.Context, data []byte) (any, error) {
		return strings.Split(strings.TrimSpace(string(data)), ","), nil
	})
	v, err = write("d.csv", "x,y,z\n").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, v)

	_, err = write("broken.json", "{").Load(ctx)
	assert.ErrorIs(t, err, errors.ErrPathInvalid)
}

func TestChecksumAndMetadata(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	p := fsys.MustPath("mem://bucket/a.txt")
	require.NoError(t, p.WriteText(ctx, "alpha", cloudpath.ContentType("text/plain")))

	sum, err := p.Checksum(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", sum)

	local := fsys.Local(filepath.Join(t.TempDir(), "a.txt"))
	require.NoError(t, local.WriteText(ctx, "alpha"))
	localSum, err := local.Checksum(ctx, "md5")
	require.NoError(t, err)
	assert.Equal(t, sum, localSum)

	require.NoError(t, p.SetXattr(ctx, map[string]string{"owner": "team"}))
	info, err := p.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "team", info.Metadata["owner"])

	url, err := p.URL(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	require.NoError(t, p.InvalidateCache(ctx))
}

func TestLocalPathsNeverBuildBundles(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	p := fsys.Local(filepath.Join(t.TempDir(), "dir", "f.txt"))

	require.NoError(t, p.WriteBytes(ctx, payload(3000)))
	_, err := p.ReadBytes(ctx)
	require.NoError(t, err)
	_, err = p.Parent().Ls(ctx)
	require.NoError(t, err)
	ok, err := p.ReadBytesAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Len(t, ok, 3000)
	exists, err := p.ExistsAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Empty(t, fsys.Bundles())
}

func TestAsyncObjectStore(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)
	p := fsys.MustPath("mem://bucket/async.txt")

	_, err := p.WriteBytesAsync(ctx, []byte("later")).Await(ctx)
	require.NoError(t, err)
	info, err := p.StatAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	dst := fsys.Local(filepath.Join(t.TempDir(), "async.txt"))
	_, err = p.CopyToAsync(ctx, dst).Await(ctx)
	require.NoError(t, err)

	entries, err := p.Parent().LsAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = p.RemoveAsync(ctx).Await(ctx)
	require.NoError(t, err)
	exists, err := p.ExistsAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMissingProviderIsBackendUnavailable(t *testing.T) {
	fsys := newFS(t, nil)
	_, err := fsys.MustPath("s3://bucket/key").Exists(context.Background())
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)

	require.NoError(t, fsys.Configure("r2", nil))
	_, err = fsys.MustPath("r2://bucket/key").Exists(context.Background())
	assert.ErrorIs(t, err, errors.ErrConfiguration, "r2 needs an endpoint or account id")
}

func TestCloseAbortsOpenUploads(t *testing.T) {
	ctx := context.Background()
	fsys, err := cloudpath.New(smallConfig(),
		cloudpath.WithRegistryOptions(config.WithSetenv(func(string, string) error { return nil })))
	require.NoError(t, err)

	h, err := fsys.MustPath("mem://bucket/open.bin").Create(ctx)
	require.NoError(t, err)
	_, err = h.Write(payload(2048))
	require.NoError(t, err)
	assert.Equal(t, 1, fsys.MemoryStore().PendingUploads())

	require.NoError(t, fsys.Close(ctx))
	assert.Equal(t, 0, fsys.MemoryStore().PendingUploads())
	require.NoError(t, fsys.Close(ctx), "close is idempotent")
}

func TestInvalidateDuringWrites(t *testing.T) {
	ctx := context.Background()
	fsys := newFS(t, nil)

	const writers = 16
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				fsys.Invalidate(ctx, "mem")
			}
			p := fsys.MustPath(fmt.Sprintf("mem://bucket/concurrent/%02d.bin", i))
			errs[i] = p.WriteBytes(ctx, payload(3000+i*1000))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
		got, err := fsys.MustPath(fmt.Sprintf("mem://bucket/concurrent/%02d.bin", i)).ReadBytes(ctx)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payload(3000+i*1000), got), "content mismatch for writer %d", i)
	}
	assert.Equal(t, 0, fsys.MemoryStore().PendingUploads())
}
