package vecfetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/merkle"
)

// remoteReferences collapses concurrent downloads of the same remote
// reference artifact.
var remoteReferences singleflight.Group

// remoteReference locates a reference artifact next to the source.
type remoteReference struct {
	key   string
	fetch func(ctx context.Context) ([]byte, error)
}

// load shares one download between concurrent openers. The download runs
// without the caller's cancellation; each caller stops waiting on its own ctx.
func (r *remoteReference) load(ctx context.Context) (*merkle.Reference, error) {
	shared := context.WithoutCancel(ctx)
	ch := remoteReferences.DoChan(r.key, func() (any, error) {
		data, err := r.fetch(shared)
		if err != nil {
			return nil, err
		}
		return merkle.DecodeReference(data)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*merkle.Reference), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveReference returns the reference for a source of size bytes. Sources
// are tried in order: injected (WithReference, or WithReferencePath loaded by
// openCache), the copy kept beside the cache, the remote artifact and
// finally a full build from the transport.
func resolveReference(ctx context.Context, o *options, t blobstore.Transport, cachePath string, remote *remoteReference, size int64) (*merkle.Reference, bool, error) {
	if o.reference != nil {
		return o.reference, false, nil
	}

	local := cachePath + merkle.ReferenceExt
	if fs.Exists(o.fs, local) {
		ref, err := merkle.LoadReferenceFS(o.fs, local)
		if err == nil && ref.Shape().ContentSize() == size {
			return ref, false, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %d bytes, source has %d", ErrReferenceMismatch, ref.Shape().ContentSize(), size)
		}
		o.logger.LogDiscard(ctx, local, err)
	}

	if remote != nil {
		ref, err := remote.load(ctx)
		switch {
		case err == nil:
			return ref, true, nil
		case !errors.Is(err, blobstore.ErrNotFound):
			return nil, false, fmt.Errorf("vecfetch: load remote reference: %w", err)
		}
	}

	if !o.buildReference {
		return nil, false, ErrNoReference
	}
	o.logger.InfoContext(ctx, "building reference from source", "size", size, "chunk_size", o.chunkSize)
	ref, err := merkle.BuildFromReaderAt(ctx, &transportReader{ctx: ctx, t: t, size: size}, size, o.chunkSize, func(bo *merkle.BuildOptions) {
		bo.Algorithm = o.hashAlgorithm
		bo.Concurrency = int(max(o.maxConcurrentFetches, 1))
	})
	return ref, true, err
}

// transportReader exposes a Transport as an io.ReaderAt.
type transportReader struct {
	ctx  context.Context
	t    blobstore.Transport
	size int64
}

func (r *transportReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	n := min(int64(len(p)), r.size-off)
	data, err := r.t.FetchRange(r.ctx, off, n)
	if err == nil && int64(len(data)) != n {
		err = fmt.Errorf("got %d bytes: %w", len(data), io.ErrUnexpectedEOF)
	}
	if err != nil {
		return 0, &TransportError{Offset: off, Length: n, cause: err}
	}
	copy(p, data)
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}
