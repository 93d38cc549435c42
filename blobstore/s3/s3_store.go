package s3

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/vecfetch/blobstore"
)

// Multipart configures how Store.Put uploads large dataset files.
type Multipart struct {
	// PartSize is both the part size and the threshold below which Put
	// sends a single request. Values below the S3 minimum are raised.
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int
}

// DefaultMultipart uploads 8 MiB parts, five at a time.
func DefaultMultipart() Multipart {
	return Multipart{PartSize: 8 << 20, Concurrency: 5}
}

// Store serves dataset files and reference artifacts from a general purpose
// S3 bucket.
type Store struct {
	bucket
	multipart Multipart
	uploader  *manager.Uploader
}

var _ blobstore.BlobStore = (*Store)(nil)

// NewStore returns a store for bucket. rootPrefix is joined in front of
// every name, e.g. "datasets/sift".
func NewStore(client Client, bucketName, rootPrefix string, optFns ...func(*Multipart)) *Store {
	mp := DefaultMultipart()
	for _, fn := range optFns {
		fn(&mp)
	}
	mp.PartSize = max(mp.PartSize, manager.MinUploadPartSize)
	return &Store{
		bucket:    bucket{client: client, name: bucketName, prefix: rootPrefix},
		multipart: mp,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = mp.PartSize
			u.Concurrency = mp.Concurrency
		}),
	}
}

// Options configures New and NewExpress.
type Options struct {
	Prefix string
	Region string
	// Endpoint overrides the service endpoint and enables path-style
	// addressing, e.g. for local S3 emulators.
	Endpoint  string
	Multipart Multipart
}

// New loads the default AWS configuration and returns a Store for bucket.
func New(ctx context.Context, bucketName string, optFns ...func(*Options)) (*Store, error) {
	client, o, err := loadClient(ctx, optFns)
	if err != nil {
		return nil, err
	}
	return NewStore(client, bucketName, o.Prefix, func(mp *Multipart) { *mp = o.Multipart }), nil
}

func loadClient(ctx context.Context, optFns []func(*Options)) (*s3.Client, Options, error) {
	o := Options{Multipart: DefaultMultipart()}
	for _, fn := range optFns {
		fn(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, o, err
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return client, o, nil
}

// Open returns an ETag-pinned blob for range reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return s.open(ctx, name)
}

// Put writes a blob. Payloads below the part size go out in one request
// with a CRC32C checksum, larger ones through the multipart uploader with
// per-part CRC32C.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if int64(len(data)) < s.multipart.PartSize {
		return s.put(ctx, name, data, false)
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.name),
		Key:               aws.String(s.key(name)),
		Body:              bytes.NewReader(data),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32c,
	})
	return err
}

// Delete removes a blob. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.remove(ctx, name)
}

// List returns the names below prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, prefix)
}
