package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Open(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/foo"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "foo")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("Success", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/bar"
		})).Return(&s3.HeadObjectOutput{
			ContentLength: aws.Int64(100),
		}, nil).Once()

		blob, err := store.Open(context.Background(), "bar")
		require.NoError(t, err)
		assert.Equal(t, int64(100), blob.Size())
	})

	mockClient.AssertExpectations(t)
}

func TestStore_Delete(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	assert.NoError(t, store.Delete(context.Background(), "del"))
	mockClient.AssertExpectations(t)
}

func TestStore_List_Pagination(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken == nil && *input.Prefix == "prefix"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("prefix/base.fvec.mref")}},
	}, nil).Once()

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken != nil && *input.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("prefix/base.fvec")}},
	}, nil).Once()

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"base.fvec", "base.fvec.mref"}, keys)
}

func TestBlob_ReadAtAndTransport(t *testing.T) {
	mockClient := new(MockS3Client)
	blob := &object{client: mockClient, bucket: "b", key: "k", size: 10}

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Bucket == "b" && *input.Key == "k" && *input.Range == "bytes=0-4"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("hello")),
	}, nil).Once()

	buf := make([]byte, 5)
	n, err := blob.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	// Reads past the end are clipped and report EOF.
	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Range == "bytes=8-9"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("ld")),
	}, nil).Once()

	buf = make([]byte, 5)
	n, err = blob.ReadAt(context.Background(), buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Range == "bytes=2-6"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("llo W")),
	}, nil).Once()

	got, err := blobstore.NewTransport(blob).FetchRange(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "llo W", string(got))
	mockClient.AssertExpectations(t)
}

func TestStore_PutSmallUsesChecksum(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "bucket", "ds")

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "ds/base.fvec.mref" &&
			*input.ChecksumCRC32C == checksumCRC32C([]byte("tree")) &&
			aws.ToInt64(input.ContentLength) == 4
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "base.fvec.mref", []byte("tree")))
	mockClient.AssertExpectations(t)
}

func TestChecksumCRC32C(t *testing.T) {
	// Known CRC32C of "123456789" is 0xE3069283.
	assert.Equal(t, "4waSgw==", checksumCRC32C([]byte("123456789")))
}

type apiError struct{ code string }

func (e apiError) Error() string                 { return e.code }
func (e apiError) ErrorCode() string             { return e.code }
func (e apiError) ErrorMessage() string          { return e.code }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestExpressStore_PutIfNotExists(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewExpressStore(mockClient, "bkt--use1-az4--x-s3", "")

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return aws.ToString(input.IfNoneMatch) == "*" && *input.Key == "a.mref"
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, store.PutIfNotExists(context.Background(), "a.mref", []byte("x")))

	mockClient.On("PutObject", mock.Anything, mock.Anything).
		Return(nil, apiError{code: "PreconditionFailed"}).Once()
	assert.ErrorIs(t, store.PutIfNotExists(context.Background(), "a.mref", []byte("x")), blobstore.ErrExists)

	boom := errors.New("network")
	mockClient.On("PutObject", mock.Anything, mock.Anything).Return(nil, boom).Once()
	assert.ErrorIs(t, store.PutIfNotExists(context.Background(), "a.mref", []byte("x")), boom)
}

func TestBlob_PinnedToETag(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "b", "ds")

	mockClient.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{
		ContentLength: aws.Int64(10),
		ETag:          aws.String(`"v1"`),
	}, nil).Once()
	blob, err := store.Open(context.Background(), "base.fvec")
	require.NoError(t, err)

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return aws.ToString(input.IfMatch) == `"v1"` && *input.Range == "bytes=0-3"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("abcd"))}, nil).Once()
	got, err := blobstore.NewTransport(blob).FetchRange(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	// The object was replaced after Open.
	mockClient.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, apiError{code: "PreconditionFailed"}).Once()
	_, err = blobstore.NewTransport(blob).FetchRange(context.Background(), 4, 4)
	assert.ErrorIs(t, err, blobstore.ErrChanged)

	mockClient.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &types.NoSuchKey{}).Once()
	_, err = blobstore.NewTransport(blob).FetchRange(context.Background(), 4, 4)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	mockClient.AssertExpectations(t)
}

func TestIsDirectoryBucket(t *testing.T) {
	assert.True(t, IsDirectoryBucket("vectors--use1-az4--x-s3"))
	assert.False(t, IsDirectoryBucket("vectors"))
}

func TestNewStore_Multipart(t *testing.T) {
	store := NewStore(new(MockS3Client), "b", "")
	assert.Equal(t, DefaultMultipart(), store.multipart)

	// Part sizes below the S3 minimum are raised.
	store = NewStore(new(MockS3Client), "b", "", func(mp *Multipart) { mp.PartSize = 1 })
	assert.Equal(t, int64(manager.MinUploadPartSize), store.multipart.PartSize)
}
