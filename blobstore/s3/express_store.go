package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/vecfetch/blobstore"
)

// IsDirectoryBucket reports whether bucket names an S3 Express One Zone
// directory bucket (<name>--<az-id>--x-s3).
func IsDirectoryBucket(bucket string) bool {
	return strings.HasSuffix(bucket, "--x-s3")
}

// ExpressStore serves datasets from an S3 Express One Zone directory bucket.
//
// Directory buckets support conditional writes, so ExpressStore implements
// blobstore.ExclusivePutter: a reference artifact is published once and
// concurrent publishers of the same dataset get blobstore.ErrExists.
type ExpressStore struct {
	bucket
}

var (
	_ blobstore.BlobStore       = (*ExpressStore)(nil)
	_ blobstore.ExclusivePutter = (*ExpressStore)(nil)
)

// NewExpressStore returns a store for the directory bucket.
func NewExpressStore(client Client, bucketName, rootPrefix string) *ExpressStore {
	return &ExpressStore{bucket{client: client, name: bucketName, prefix: rootPrefix}}
}

// NewExpress loads the default AWS configuration and returns an
// ExpressStore for bucket.
func NewExpress(ctx context.Context, bucketName string, optFns ...func(*Options)) (*ExpressStore, error) {
	if !IsDirectoryBucket(bucketName) {
		return nil, fmt.Errorf("s3: %q is not a directory bucket", bucketName)
	}
	client, o, err := loadClient(ctx, optFns)
	if err != nil {
		return nil, err
	}
	return NewExpressStore(client, bucketName, o.Prefix), nil
}

// Open returns an ETag-pinned blob for range reads.
func (s *ExpressStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return s.open(ctx, name)
}

// Put writes a blob with a CRC32C checksum.
func (s *ExpressStore) Put(ctx context.Context, name string, data []byte) error {
	return s.put(ctx, name, data, false)
}

// PutIfNotExists writes the blob with If-None-Match: *. It returns
// blobstore.ErrExists when the key is already present.
func (s *ExpressStore) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	return s.put(ctx, name, data, true)
}

// Delete removes a blob. Missing keys are not an error.
func (s *ExpressStore) Delete(ctx context.Context, name string) error {
	return s.remove(ctx, name)
}

// List returns the names below prefix, sorted.
func (s *ExpressStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, prefix)
}
