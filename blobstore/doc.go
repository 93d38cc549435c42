// Package blobstore provides the storage abstraction vecfetch downloads from.
//
// A BlobStore holds named, immutable blobs: dataset files such as
// base.fvec and the reference trees published next to them
// (base.fvec.mref). Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap support
//   - MemoryStore: In-memory, for tests
//   - httpstore.Store: Any HTTP(S) server honoring Range requests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//
// # Transports
//
// The cache layer never reads a BlobStore directly; it pulls byte ranges
// through a Transport:
//
//	type Transport interface {
//	    FetchRange(ctx, off, length) ([]byte, error)
//	    Size(ctx) (int64, error)
//	    SupportsRangeRequests() bool
//	    Close() error
//	}
//
// NewTransport adapts any Blob. Blobs implementing RangeReader stream the
// requested range instead of filling a buffer through ReadAt.
package blobstore
