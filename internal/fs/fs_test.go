package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	// Test MkdirAll
	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	// Test OpenFile (Create)
	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	// Write
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)

	// Sync
	assert.NoError(t, f.Sync())

	// Stat via File
	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	assert.NoError(t, f.Close())

	// Stat via FS
	info2, err := lfs.Stat(fpath)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info2.Size())

	// ReadDir
	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	// Rename
	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	// Truncate
	assert.NoError(t, lfs.Truncate(newPath, 3))
	info3, err := lfs.Stat(newPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), info3.Size())

	// Remove
	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteBudget(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("state", Fault{WriteBudget: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "x.state"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, ffs.Injected())
}

func TestFaultyFS_Delegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, ffs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("unrestricted"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	assert.NoError(t, ffs.Truncate(fpath, 10))
	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	_, err = ffs.Stat(fpath + ".renamed")
	assert.NoError(t, err)
	_, err = ffs.ReadDir(dir)
	assert.NoError(t, err)
	assert.NoError(t, ffs.Remove(fpath+".renamed"))
	assert.Zero(t, ffs.Injected())
}

func TestFaultyFS_WriteAt(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".cache", Fault{Ops: OpWriteAt})

	f, err := ffs.OpenFile(filepath.Join(tmp, "data.cache"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("abc"), 0)
	assert.ErrorIs(t, err, ErrInjected)

	g, err := ffs.OpenFile(filepath.Join(tmp, "data.mrkl"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer g.Close()

	n, err := g.WriteAt([]byte("abc"), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFaultyFS_LatestRuleWins(t *testing.T) {
	tmp := t.TempDir()
	custom := errors.New("disk full")
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".bin", Fault{Ops: OpWriteAt})
	ffs.AddRule("data.bin", Fault{Ops: OpSync, Err: custom})

	f, err := ffs.OpenFile(filepath.Join(tmp, "data.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), custom)
	require.NoError(t, f.Close())

	ffs.ClearRules()
	f, err = ffs.OpenFile(filepath.Join(tmp, "data.bin"), os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}

func TestFaultyFS_Rename(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "artifact.mref")
	require.NoError(t, WriteFileAtomic(Default, path, []byte("old")))

	ffs := NewFaultyFS(nil)
	ffs.AddRule(".mref", Fault{Ops: OpRename})
	require.ErrorIs(t, WriteFileAtomic(ffs, path, []byte("new")), ErrInjected)

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestWriteFileAtomic(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "artifact.mref")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("first")))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("second")))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not survive")
	assert.True(t, Exists(Default, path))
	assert.False(t, Exists(Default, path+".missing"))
}

func TestWriteFileAtomic_SyncFailureKeepsOldContent(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "artifact.mrkl")
	require.NoError(t, WriteFileAtomic(Default, path, []byte("old")))

	ffs := NewFaultyFS(nil)
	ffs.AddRule(".tmp", Fault{Ops: OpSync})

	require.Error(t, WriteFileAtomic(ffs, path, []byte("new")))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestPreallocate(t *testing.T) {
	tmp := t.TempDir()
	f, err := Default.OpenFile(filepath.Join(tmp, "cache"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, Preallocate(f, 1<<20))
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), info.Size())
	assert.NoError(t, AdviseRandom(f))
}
