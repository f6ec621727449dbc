package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
)

const root = "/data/docs"

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, fs afero.Fs, rel, content string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	require.NoError(t, fs.Chtimes(p, mtime, mtime))
}

func sumOf(t *testing.T, content string) string {
	t.Helper()
	sum, err := checksum.NewDefault().Sum(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	return sum
}

func newTestIndex(t *testing.T, fs afero.Fs) *DirectoryIndex {
	t.Helper()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	return New(root, Options{Fs: fs})
}

func TestRebuildIndexesNestedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.txt", "alpha", baseTime)
	writeFile(t, fs, "sub/b.txt", "bravo", baseTime.Add(time.Second))
	writeFile(t, fs, "sub/deeper/c.txt", "charlie", baseTime.Add(2*time.Second))

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))

	assert.Equal(t, []string{"a.txt", "sub/b.txt", "sub/deeper/c.txt"}, idx.Paths())

	snap, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 3)

	assert.Equal(t, sumOf(t, "charlie"), snap["sub/deeper/c.txt"].Hash)
	assert.InDelta(t, domain.UnixSeconds(baseTime.Add(2*time.Second)), snap["sub/deeper/c.txt"].LastModified, 1e-6)
}

func TestEntryHashIsMemoized(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.txt", "first", baseTime)

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))

	e, err := idx.Get("a.txt")
	require.NoError(t, err)

	h1, err := e.Hash(context.Background())
	require.NoError(t, err)

	// content changes behind the entry's back
	writeFile(t, fs, "a.txt", "second", baseTime)

	h2, err := e.Hash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, sumOf(t, "first"), h2)
}

func TestEntryHashFailureIsNotMemoized(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.txt", "content", baseTime)

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))
	e, err := idx.Get("a.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Remove(filepath.Join(root, "a.txt")))
	_, err = e.Hash(context.Background())
	require.ErrorIs(t, err, domain.ErrIO)

	writeFile(t, fs, "a.txt", "content", baseTime)
	sum, err := e.Hash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sumOf(t, "content"), sum)
}

func TestRefreshReplacesOnlyNewerEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "keep.txt", "v1", baseTime)
	writeFile(t, fs, "touch.txt", "v1", baseTime)
	writeFile(t, fs, "gone.txt", "v1", baseTime)

	idx := newTestIndex(t, fs)
	ctx := context.Background()
	require.NoError(t, idx.Rebuild(ctx))
	before, err := idx.Snapshot(ctx)
	require.NoError(t, err)

	// same mtime, new content: entry is kept
	writeFile(t, fs, "keep.txt", "v2", baseTime)
	// newer mtime: entry is replaced
	writeFile(t, fs, "touch.txt", "v2", baseTime.Add(time.Minute))
	writeFile(t, fs, "new.txt", "fresh", baseTime)
	require.NoError(t, fs.Remove(filepath.Join(root, "gone.txt")))

	require.NoError(t, idx.Refresh(ctx))

	assert.True(t, idx.Has("new.txt"))
	assert.True(t, idx.Has("gone.txt"), "refresh must not drop entries")

	keep, _ := idx.Get("keep.txt")
	h, err := keep.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, before["keep.txt"].Hash, h)

	touch, _ := idx.Get("touch.txt")
	h, err = touch.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, sumOf(t, "v2"), h)
	assert.True(t, touch.ModTime().Equal(baseTime.Add(time.Minute)))
}

func TestRebuildDropsDeletedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.txt", "a", baseTime)
	writeFile(t, fs, "b.txt", "b", baseTime)

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))
	require.NoError(t, fs.Remove(filepath.Join(root, "b.txt")))
	require.NoError(t, idx.Rebuild(context.Background()))

	assert.Equal(t, []string{"a.txt"}, idx.Paths())
}

func TestSnapshotOmitsVanishedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.txt", "a", baseTime)
	writeFile(t, fs, "b.txt", "b", baseTime)

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))
	require.NoError(t, fs.Remove(filepath.Join(root, "b.txt")))

	snap, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap, "a.txt")
	assert.NotContains(t, snap, "b.txt")
}

func TestGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "dir/a.txt", "a", baseTime)

	idx := newTestIndex(t, fs)
	require.NoError(t, idx.Rebuild(context.Background()))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"indexed", "dir/a.txt", false},
		{"unclean but inside", "./dir//a.txt", false},
		{"backslashes", `dir\a.txt`, false},
		{"missing", "dir/b.txt", true},
		{"escaping", "../docs/dir/a.txt", true},
		{"absolute", "/dir/a.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := idx.Get(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "dir/a.txt", e.RelPath())
			assert.Equal(t, filepath.Join(root, "dir", "a.txt"), e.AbsPath())
		})
	}
}

func TestRebuildMissingRoot(t *testing.T) {
	idx := New("/nope", Options{Fs: afero.NewMemMapFs()})
	err := idx.Rebuild(context.Background())
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestIgnorePatterns(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "keep.txt", "k", baseTime)
	writeFile(t, fs, "debug.log", "l", baseTime)
	writeFile(t, fs, "build/out.bin", "b", baseTime)
	writeFile(t, fs, "notes.txt"+TempSuffix, "partial", baseTime)
	writeFile(t, fs, "cache/x.dat", "c", baseTime)
	writeFile(t, fs, IgnoreFileName, "# local rules\ncache/\n", baseTime)

	require.NoError(t, fs.MkdirAll(root, 0o755))
	idx := New(root, Options{
		Fs:     fs,
		Ignore: LoadIgnoreList(fs, root, []string{"*.log", "build/"}),
	})
	require.NoError(t, idx.Rebuild(context.Background()))

	assert.Equal(t, []string{IgnoreFileName, "keep.txt"}, idx.Paths())

	for _, rel := range []string{"debug.log", "build/out.bin", "cache/deep/x.dat", ".DS_Store", "a" + TempSuffix} {
		assert.True(t, idx.Ignored(rel), rel)
	}
	for _, rel := range []string{"keep.txt", "sub/build.txt"} {
		assert.False(t, idx.Ignored(rel), rel)
	}
}

func TestRebuildSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	idx := New(dir, Options{})
	require.NoError(t, idx.Rebuild(context.Background()))
	assert.Equal(t, []string{"real.txt"}, idx.Paths())
}

func TestSnapshotDuringRebuild(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"a", "b", "c", "d"} {
		writeFile(t, fs, name+".txt", name, baseTime)
	}
	idx := newTestIndex(t, fs)
	ctx := context.Background()
	require.NoError(t, idx.Rebuild(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, idx.Rebuild(ctx))
		}()
		go func() {
			defer wg.Done()
			snap, err := idx.Snapshot(ctx)
			assert.NoError(t, err)
			assert.Len(t, snap, 4)
		}()
	}
	wg.Wait()
}
