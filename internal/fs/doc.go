// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test wrapper that fails selected operations on matching paths
//
// # Helpers
//
// [WriteFileAtomic] is used for every artifact save (temp file, fsync, rename).
// [Preallocate] sizes the local cache file up front; on linux it uses
// fallocate so verified chunks are never lost to ENOSPC halfway through a
// download.
//
// This package intentionally does NOT include context.Context parameters.
// Local filesystem calls are not interruptible at the syscall level.
// Slow remote access goes through blobstore, which takes a context.
package fs
