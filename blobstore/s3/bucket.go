package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/internal/hash"
)

// Client is the subset of *s3.Client the stores use.
type Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ Client = (*s3.Client)(nil)

// bucket holds what Store and ExpressStore share: one bucket, one key
// prefix, one client.
type bucket struct {
	client Client
	name   string
	prefix string
}

func (b bucket) key(name string) string {
	return path.Join(b.prefix, name)
}

// rel strips the store prefix from an object key.
func (b bucket) rel(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, b.prefix), "/")
}

// open heads the object and returns a blob pinned to its ETag.
func (b bucket) open(ctx context.Context, name string) (*object, error) {
	key := b.key(name)
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translate(err)
	}
	return &object{
		client: b.client,
		bucket: b.name,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
		etag:   aws.ToString(head.ETag),
	}, nil
}

// put writes data in one request with a CRC32C checksum. exclusive adds
// If-None-Match: * and maps a lost race to blobstore.ErrExists.
func (b bucket) put(ctx context.Context, name string, data []byte, exclusive bool) error {
	input := &s3.PutObjectInput{
		Bucket:         aws.String(b.name),
		Key:            aws.String(b.key(name)),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ChecksumCRC32C: aws.String(checksumCRC32C(data)),
	}
	if exclusive {
		input.IfNoneMatch = aws.String("*")
	}
	_, err := b.client.PutObject(ctx, input)
	if exclusive && isConditionFailed(err) {
		return fmt.Errorf("%w: %s", blobstore.ErrExists, name)
	}
	return err
}

// remove deletes the object. Missing keys are not an error.
func (b bucket) remove(ctx context.Context, name string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(b.key(name)),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// list pages through every key below prefix and returns the names sorted.
func (b bucket) list(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(b.key(prefix)),
	})

	var names []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		for _, obj := range page.Contents {
			names = append(names, b.rel(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(names)
	return names, nil
}

// checksumCRC32C returns the base64 big-endian CRC32C S3 expects in
// x-amz-checksum-crc32c.
func checksumCRC32C(data []byte) string {
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// isConditionFailed reports a failed If-Match or If-None-Match precondition.
func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

// translate maps S3 errors onto blobstore sentinels.
func translate(err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: %w", blobstore.ErrNotFound, err)
	case isConditionFailed(err):
		return fmt.Errorf("%w: %w", blobstore.ErrChanged, err)
	}
	return err
}
