package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecfetch"
	"github.com/hupe1980/vecfetch/blobstore/httpstore"
	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/testutil"
)

func newTestServer(t *testing.T, files map[string][]byte) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = "64KiB"
	srv := httptest.NewServer(newServer(root, cfg, vecfetch.NoopLogger()).router())
	t.Cleanup(srv.Close)
	return srv, root
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer(t *testing.T) {
	data := testutil.Payload(1, 300<<10)
	srv, root := newTestServer(t, map[string][]byte{"sets/base.fvec": data})

	t.Run("Health", func(t *testing.T) {
		resp, _ := get(t, srv.URL+"/healthz", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("RangeRequest", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/sets/base.fvec", map[string]string{"Range": "bytes=100-199"})
		assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, data[100:200], body)
	})

	t.Run("NotFound", func(t *testing.T) {
		resp, _ := get(t, srv.URL+"/sets/missing.fvec", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = get(t, srv.URL+"/sets/missing.fvec.mref", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("PathEscape", func(t *testing.T) {
		outside := filepath.Join(filepath.Dir(root), "secret")
		require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
		t.Cleanup(func() { _ = os.Remove(outside) })
		resp, _ := get(t, srv.URL+"/sets/..%2F..%2Fsecret", nil)
		assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("ReferenceBuiltOnDemand", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/sets/base.fvec.mref", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		got, err := merkle.DecodeReference(body)
		require.NoError(t, err)
		want, err := merkle.BuildFromBytes(data, 64<<10)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))

		_, again := get(t, srv.URL+"/sets/base.fvec.mref", nil)
		assert.Equal(t, body, again)
	})

	t.Run("ReferenceRebuiltWhenSourceChanges", func(t *testing.T) {
		p := filepath.Join(root, "sets", "other.fvec")
		require.NoError(t, os.WriteFile(p, testutil.Payload(2, 100<<10), 0o644))
		_, first := get(t, srv.URL+"/sets/other.fvec.mref", nil)

		changed := testutil.Payload(3, 100<<10)
		require.NoError(t, os.WriteFile(p, changed, 0o644))
		future := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(p, future, future))

		_, second := get(t, srv.URL+"/sets/other.fvec.mref", nil)
		assert.NotEqual(t, first, second)
		got, err := merkle.DecodeReference(second)
		require.NoError(t, err)
		want, err := merkle.BuildFromBytes(changed, 64<<10)
		require.NoError(t, err)
		assert.Equal(t, want.Root(), got.Root())
	})

	t.Run("PublishedReferenceWins", func(t *testing.T) {
		published, err := merkle.BuildFromBytes(data, 128<<10)
		require.NoError(t, err)
		require.NoError(t, published.Save(filepath.Join(root, "sets", "base.fvec.mref")))
		t.Cleanup(func() { _ = os.Remove(filepath.Join(root, "sets", "base.fvec.mref")) })

		_, body := get(t, srv.URL+"/sets/base.fvec.mref", nil)
		got, err := merkle.DecodeReference(body)
		require.NoError(t, err)
		assert.Equal(t, int64(128<<10), got.Shape().ChunkSize())
	})
}

func TestServerChannelEndToEnd(t *testing.T) {
	data := testutil.FvecPayload(7, 2048, 64)
	srv, _ := newTestServer(t, map[string][]byte{"base.fvec": data})

	store, err := httpstore.New(srv.URL)
	require.NoError(t, err)

	ctx := context.Background()
	cacheDir := t.TempDir()
	ch, err := vecfetch.OpenStore(ctx, store, "base.fvec", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), ch.Size())

	buf := make([]byte, 4096)
	n, err := ch.ReadAt(ctx, buf, 200<<10)
	require.NoError(t, err)
	assert.Equal(t, data[200<<10:200<<10+n], buf[:n])
	assert.Less(t, ch.Stats().ValidLeaves, ch.Stats().Leaves)

	require.NoError(t, ch.Prebuffer(ctx, 0, ch.Size()).Wait(ctx))
	assert.True(t, ch.IsComplete())
	require.NoError(t, ch.Close())

	cached, err := os.ReadFile(filepath.Join(cacheDir, "base.fvec"))
	require.NoError(t, err)
	assert.Equal(t, data, cached)
}
