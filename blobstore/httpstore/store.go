package httpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/vecfetch/blobstore"
)

// ErrUnsupported is returned by List.
var ErrUnsupported = errors.New("httpstore: operation not supported")

// StatusError reports an unexpected HTTP response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpstore: %s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// Options configures a Store.
type Options struct {
	// Client performs requests. Defaults to a client with Timeout.
	Client *http.Client
	// Timeout applies to the default client. Defaults to 60s.
	Timeout time.Duration
	// Header is added to every request, e.g. for authorization.
	Header http.Header
}

// Store implements blobstore.BlobStore over HTTP.
type Store struct {
	base   *url.URL
	client *http.Client
	header http.Header
}

// New returns a store resolving names against baseURL.
func New(baseURL string, optFns ...func(*Options)) (*Store, error) {
	o := Options{Timeout: 60 * time.Second}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpstore: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpstore: unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Store{base: u, client: o.Client, header: o.Header}, nil
}

// URL returns the absolute URL of name.
func (s *Store) URL(name string) string {
	return s.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(name, "/")}).String()
}

func (s *Store) newRequest(ctx context.Context, method, name string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.URL(name), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Open issues a HEAD request to learn the size and range support of name.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	req, err := s.newRequest(ctx, http.MethodHead, name, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, blobstore.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode}
	case resp.ContentLength < 0:
		return nil, fmt.Errorf("httpstore: %s: server did not report Content-Length", req.URL)
	}

	b := &blob{
		store:  s,
		name:   name,
		size:   resp.ContentLength,
		ranges: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
	}
	// If-Match uses strong comparison, so weak validators cannot pin.
	if etag := resp.Header.Get("ETag"); etag != "" && !strings.HasPrefix(etag, "W/") {
		b.etag = etag
	}
	return b, nil
}

// Put uploads data with a PUT request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	req, err := s.newRequest(ctx, http.MethodPut, name, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	return s.do(req, http.StatusOK, http.StatusCreated, http.StatusNoContent)
}

// PutIfNotExists uploads with If-None-Match: * and reports
// blobstore.ErrExists when the server answers 412 Precondition Failed.
func (s *Store) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	req, err := s.newRequest(ctx, http.MethodPut, name, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("If-None-Match", "*")
	err = s.do(req, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", blobstore.ErrExists, name)
	}
	return err
}

// Delete removes name with a DELETE request.
func (s *Store) Delete(ctx context.Context, name string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, name, nil)
	if err != nil {
		return err
	}
	return s.do(req, http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound)
}

// List is not supported over plain HTTP.
func (s *Store) List(context.Context, string) ([]string, error) {
	return nil, ErrUnsupported
}

func (s *Store) do(req *http.Request, ok ...int) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	return &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode}
}

type blob struct {
	store  *Store
	name   string
	size   int64
	ranges bool
	etag   string
}

func (b *blob) Size() int64 { return b.size }

func (b *blob) Close() error { return nil }

func (b *blob) SupportsRangeRequests() bool { return b.ranges }

// ReadRange streams [off, off+length) clipped to the blob size.
func (b *blob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= b.size {
		return nil, io.EOF
	}
	end := min(off+length, b.size) - 1

	req, err := b.store.newRequest(ctx, http.MethodGet, b.name, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(off, 10)+"-"+strconv.FormatInt(end, 10))
	if b.etag != "" {
		req.Header.Set("If-Match", b.etag)
	}

	resp, err := b.store.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		// Range ignored; skip to off and cap the body.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("httpstore: skip %d bytes of full response: %w", off, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{io.LimitReader(resp.Body, end-off+1), resp.Body}, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, blobstore.ErrNotFound
	case http.StatusPreconditionFailed:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", blobstore.ErrChanged, req.URL)
	default:
		_ = resp.Body.Close()
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode}
	}
}

func (b *blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rc, err := b.ReadRange(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) || (err == nil && n < len(p)) {
		return n, io.EOF
	}
	return n, err
}
