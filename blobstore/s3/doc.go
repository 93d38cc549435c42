// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "datasets/sift/"
//	    o.Region = "us-east-1"
//	})
//
//	ch, err := vecfetch.OpenStore(ctx, store, "base.fvec", cacheDir)
//
// Range reads carry If-Match with the ETag seen at Open, so an object that is
// replaced during a download fails with blobstore.ErrChanged. Uploads above
// the part size go through the multipart uploader; smaller ones are a single
// PutObject with a CRC32C checksum.
//
// Directory buckets (S3 Express One Zone) are served by ExpressStore, which
// adds conditional creation for publishing reference artifacts exactly once.
package s3
