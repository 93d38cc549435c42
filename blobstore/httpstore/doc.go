// Package httpstore reads blobs from any HTTP(S) server.
//
// Blob names are resolved relative to a base URL. Partial reads use Range
// requests; servers that ignore Range and answer 200 are still supported,
// the unwanted prefix is discarded client side and SupportsRangeRequests
// reports false.
//
//	store, err := httpstore.New("https://example.org/datasets/sift/")
//	tr, err := blobstore.OpenTransport(ctx, store, "base.fvec")
//
// Put and Delete issue PUT and DELETE requests, which plain static file
// servers usually reject. List is not supported.
package httpstore
