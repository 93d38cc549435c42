// Package vecfetch provides a merkle-verified incremental cache for large
// remote files such as vector benchmark datasets.
//
// A Channel presents a remote source as a randomly addressable file. Reads
// download only the chunks they touch, verify each chunk against a merkle
// reference and persist it in a local cache file. Verified chunks are
// recorded in a state artifact so they are never downloaded again, even
// across process restarts.
//
// # Quick Start
//
// From a blob store with a published reference (<name>.mref):
//
//	store, _ := httpstore.New("https://data.example.com/sift")
//	ch, _ := vecfetch.OpenStore(ctx, store, "base.fvec", "./cache")
//	defer ch.Close()
//
//	buf := make([]byte, 4096)
//	n, _ := ch.ReadAt(ctx, buf, 0)
//
// From any transport, building the reference on first open:
//
//	t, _ := blobstore.OpenTransport(ctx, store, "base.fvec")
//	ch, _ := vecfetch.Open(ctx, t, "./cache/base.fvec", vecfetch.WithBuildReference(true))
//
// # Prebuffering
//
// Prebuffer fetches a range in the background and reports progress:
//
//	p := ch.Prebuffer(ctx, 0, ch.Size())
//	for {
//	    select {
//	    case <-p.Done():
//	        return p.Err()
//	    case <-time.After(time.Second):
//	        fmt.Printf("%.1f%%\n", p.Percent())
//	    }
//	}
//
// # Scheduling
//
// Missing chunks are grouped into downloads by a scheduler.Scheduler
// (conservative, default, aggressive or adaptive). Concurrent readers of
// overlapping ranges share downloads through the task queue.
//
// # Errors
//
// Chunks that fail verification surface as *IntegrityError and transport
// failures as *TransportError. Neither changes cached data, so callers may
// retry. Corrupt artifacts fail with merkle.ErrFormat.
package vecfetch
