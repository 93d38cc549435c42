package httpstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileServer struct {
	mu       sync.Mutex
	files    map[string][]byte
	versions map[string]int
	noRanges bool
	requests []string
}

func (f *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+" "+r.Header.Get("Range"))

	name := strings.TrimPrefix(r.URL.Path, "/data/")
	switch r.Method {
	case http.MethodPut:
		if _, ok := f.files[name]; ok && r.Header.Get("If-None-Match") == "*" {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.files[name] = body
		f.versions[name]++
		w.WriteHeader(http.StatusCreated)
		return
	case http.MethodDelete:
		delete(f.files, name)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data, ok := f.files[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if f.noRanges {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
		return
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%s-%d"`, name, f.versions[name]))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

func newServer(t *testing.T, noRanges bool) (*fileServer, *Store) {
	t.Helper()
	fs := &fileServer{
		files:    map[string][]byte{"base.fvec": []byte("0123456789abcdefghij")},
		versions: map[string]int{},
		noRanges: noRanges,
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	store, err := New(srv.URL + "/data")
	require.NoError(t, err)
	return fs, store
}

func TestStore_RangeRequests(t *testing.T) {
	ctx := context.Background()
	fs, store := newServer(t, false)

	tr, err := blobstore.OpenTransport(ctx, store, "base.fvec")
	require.NoError(t, err)
	defer tr.Close()

	assert.True(t, tr.SupportsRangeRequests())
	size, err := tr.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), size)

	got, err := tr.FetchRange(ctx, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, "5678", string(got))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Contains(t, fs.requests, "GET /data/base.fvec bytes=5-8")
}

func TestStore_ServerIgnoresRanges(t *testing.T) {
	ctx := context.Background()
	_, store := newServer(t, true)

	blob, err := store.Open(ctx, "base.fvec")
	require.NoError(t, err)
	tr := blobstore.NewTransport(blob)
	assert.False(t, tr.SupportsRangeRequests())

	got, err := tr.FetchRange(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(got))

	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 16)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ghij", string(buf[:n]))
}

func TestStore_NotFoundAndPut(t *testing.T) {
	ctx := context.Background()
	_, store := newServer(t, false)

	_, err := store.Open(ctx, "missing.mref")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "base.fvec.mref", []byte("tree")))
	got, err := blobstore.ReadAll(ctx, store, "base.fvec.mref")
	require.NoError(t, err)
	assert.Equal(t, "tree", string(got))

	require.NoError(t, store.Delete(ctx, "base.fvec.mref"))
	_, err = store.Open(ctx, "base.fvec.mref")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStore_PinnedToETag(t *testing.T) {
	ctx := context.Background()
	_, store := newServer(t, false)

	tr, err := blobstore.OpenTransport(ctx, store, "base.fvec")
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.FetchRange(ctx, 0, 4)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "base.fvec", []byte("ABCDEFGHIJKLMNOPQRST")))
	_, err = tr.FetchRange(ctx, 4, 4)
	assert.ErrorIs(t, err, blobstore.ErrChanged)

	// A fresh open sees the new version.
	got, err := blobstore.ReadAll(ctx, store, "base.fvec")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJKLMNOPQRST", string(got))
}

func TestStore_PutIfNotExists(t *testing.T) {
	ctx := context.Background()
	_, store := newServer(t, false)

	require.NoError(t, store.PutIfNotExists(ctx, "base.fvec.mref", []byte("tree")))
	err := store.PutIfNotExists(ctx, "base.fvec.mref", []byte("other"))
	assert.ErrorIs(t, err, blobstore.ErrExists)

	got, err := blobstore.ReadAll(ctx, store, "base.fvec.mref")
	require.NoError(t, err)
	assert.Equal(t, "tree", string(got))
}

func TestNew(t *testing.T) {
	_, err := New("ftp://example.org/")
	assert.Error(t, err)

	s, err := New("https://example.org/datasets/sift")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/datasets/sift/base.fvec", s.URL("base.fvec"))
	assert.Equal(t, "https://example.org/datasets/sift/q/query.fvec", s.URL("/q/query.fvec"))
}
