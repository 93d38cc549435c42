// Package resource governs how hard vecfetch pulls on a remote source.
//
// The Controller bounds two resources:
//
//   - Concurrency: the number of range requests in flight (weighted
//     semaphore).
//   - IO: download bandwidth (token bucket).
//
// # Fetch Slots
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentFetches: 4,
//	})
//
//	if err := rc.AcquireFetch(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseFetch()
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 * 1024 * 1024, // 100MB/s
//	})
//
//	if err := rc.AcquireIO(ctx, len(chunk)); err != nil {
//	    return err
//	}
//
//	// Rate-limited stream, e.g. when hashing a remote source.
//	reader := resource.NewRateLimitedReader(ctx, body, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
