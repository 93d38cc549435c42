package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Transport fetches byte ranges of one remote source.
type Transport interface {
	// FetchRange returns exactly length bytes starting at off, or an error.
	FetchRange(ctx context.Context, off, length int64) ([]byte, error)
	// Size returns the total source length.
	Size(ctx context.Context) (int64, error)
	// SupportsRangeRequests reports whether partial fetches are served
	// natively rather than by transferring the whole source.
	SupportsRangeRequests() bool
	// Close releases the transport.
	Close() error
}

// RangeSupporter is an optional interface for Blobs whose backend may not
// serve partial content natively.
type RangeSupporter interface {
	SupportsRangeRequests() bool
}

// NewTransport adapts a Blob to a Transport. The transport owns blob and
// closes it on Close.
func NewTransport(blob Blob) Transport {
	return &blobTransport{blob: blob}
}

// OpenTransport opens name in store and returns it as a Transport.
func OpenTransport(ctx context.Context, store BlobStore, name string) (Transport, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewTransport(b), nil
}

type blobTransport struct {
	blob Blob
}

func (t *blobTransport) FetchRange(ctx context.Context, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off+length > t.blob.Size() {
		return nil, fmt.Errorf("blobstore: range [%d,+%d) outside %d bytes: %w", off, length, t.blob.Size(), io.ErrUnexpectedEOF)
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}

	if rr, ok := t.blob.(RangeReader); ok {
		rc, err := rr.ReadRange(ctx, off, length)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		if _, err := io.ReadFull(rc, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	n, err := t.blob.ReadAt(ctx, buf, off)
	if int64(n) == length {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

func (t *blobTransport) Size(context.Context) (int64, error) {
	return t.blob.Size(), nil
}

func (t *blobTransport) SupportsRangeRequests() bool {
	if rs, ok := t.blob.(RangeSupporter); ok {
		return rs.SupportsRangeRequests()
	}
	return true
}

func (t *blobTransport) Close() error { return t.blob.Close() }
