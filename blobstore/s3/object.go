package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// object is the blob returned by Store.Open and ExpressStore.Open. Range
// reads carry If-Match with the ETag seen at open, so a replaced object
// fails with blobstore.ErrChanged instead of mixing two versions in one
// cache file.
type object struct {
	client Client
	bucket string
	key    string
	size   int64
	etag   string
}

func (o *object) Size() int64 { return o.size }

func (o *object) Close() error { return nil }

// ReadRange issues a ranged GET for [off, off+length) clipped to the object.
func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= o.size {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, min(off+length, o.size)-1)),
	}
	if o.etag != "" {
		input.IfMatch = aws.String(o.etag)
	}
	resp, err := o.client.GetObject(ctx, input)
	if err != nil {
		return nil, translate(err)
	}
	return resp.Body, nil
}

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	body, err := o.ReadRange(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer body.Close()

	want := min(off+int64(len(p)), o.size) - off
	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
