package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("hello world, this is a test blob for vecfetch")

			require.NoError(t, store.Put(ctx, "sift/base.fvec", data))
			require.NoError(t, store.Put(ctx, "sift/base.fvec.mref", []byte("ref")))
			require.NoError(t, store.Put(ctx, "gist/base.fvec", []byte("other")))

			blob, err := store.Open(ctx, "sift/base.fvec")
			require.NoError(t, err)
			defer blob.Close()
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err := blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))

			// Short read at the tail.
			buf = make([]byte, 10)
			n, err = blob.ReadAt(ctx, buf, int64(len(data)-3))
			assert.Equal(t, 3, n)
			assert.ErrorIs(t, err, io.EOF)

			_, err = blob.ReadAt(ctx, buf, int64(len(data)))
			assert.ErrorIs(t, err, io.EOF)

			names, err := store.List(ctx, "sift/")
			require.NoError(t, err)
			assert.Equal(t, []string{"sift/base.fvec", "sift/base.fvec.mref"}, names)

			all, err := ReadAll(ctx, store, "gist/base.fvec")
			require.NoError(t, err)
			assert.Equal(t, "other", string(all))

			require.NoError(t, store.Delete(ctx, "gist/base.fvec"))
			require.NoError(t, store.Delete(ctx, "gist/base.fvec"))
			_, err = store.Open(ctx, "gist/base.fvec")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestBlobStore_PutOverwrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "a", []byte("first")))
			require.NoError(t, store.Put(ctx, "a", []byte("second!")))

			got, err := ReadAll(ctx, store, "a")
			require.NoError(t, err)
			assert.Equal(t, "second!", string(got))
		})
	}
}

func TestMemoryStore_PutCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "x", data))
	data[0] = 'z'

	got, err := ReadAll(ctx, store, "x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStore_EmptyFileAndMissingRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), nil, 0o644))

	store := NewLocalStore(dir)
	blob, err := store.Open(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, blob.Size())
	require.NoError(t, blob.Close())

	names, err := NewLocalStore(filepath.Join(dir, "nope")).List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBlobStore_PutIfNotExists(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ep, ok := store.(ExclusivePutter)
			require.True(t, ok)

			require.NoError(t, ep.PutIfNotExists(ctx, "sift/base.fvec.mref", []byte("first")))
			err := ep.PutIfNotExists(ctx, "sift/base.fvec.mref", []byte("second"))
			assert.ErrorIs(t, err, ErrExists)

			got, err := ReadAll(ctx, store, "sift/base.fvec.mref")
			require.NoError(t, err)
			assert.Equal(t, "first", string(got))

			names, err := store.List(ctx, "sift/")
			require.NoError(t, err)
			assert.Equal(t, []string{"sift/base.fvec.mref"}, names)
		})
	}
}
