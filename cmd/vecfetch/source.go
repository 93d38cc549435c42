package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/blobstore/httpstore"
	"github.com/hupe1980/vecfetch/blobstore/minio"
	"github.com/hupe1980/vecfetch/blobstore/s3"
)

// openSource resolves a source URL to a store and the object name within it.
//
//	/data/base.fvec, file:///data/base.fvec   local directory
//	https://host/sift/base.fvec               HTTP range requests
//	s3://bucket/sift/base.fvec                Amazon S3 (directory buckets via S3 Express)
//	minio://bucket/sift/base.fvec             MinIO at cfg.MinIO.Endpoint
func openSource(ctx context.Context, cfg *Config, raw string) (blobstore.BlobStore, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return blobstore.NewLocalStore(filepath.Dir(raw)), filepath.Base(raw), nil
	}

	switch u.Scheme {
	case "file":
		p := filepath.FromSlash(u.Path)
		return blobstore.NewLocalStore(filepath.Dir(p)), filepath.Base(p), nil

	case "http", "https":
		dir, name := path.Split(u.Path)
		if name == "" {
			return nil, "", fmt.Errorf("source %s: missing object name", raw)
		}
		base := *u
		base.Path = dir
		base.RawQuery = ""
		store, err := httpstore.New(base.String(), func(o *httpstore.Options) {
			o.Timeout = cfg.HTTP.Timeout
			if len(cfg.HTTP.Headers) > 0 {
				o.Header = make(http.Header, len(cfg.HTTP.Headers))
				for k, v := range cfg.HTTP.Headers {
					o.Header.Set(k, v)
				}
			}
		})
		return store, name, err

	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		opts := func(o *s3.Options) {
			o.Region = cfg.S3.Region
			o.Endpoint = cfg.S3.Endpoint
		}
		if s3.IsDirectoryBucket(u.Host) {
			store, err := s3.NewExpress(ctx, u.Host, opts)
			return store, key, err
		}
		store, err := s3.New(ctx, u.Host, opts)
		return store, key, err

	case "minio":
		client, err := miniogo.New(cfg.MinIO.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.Secure,
		})
		if err != nil {
			return nil, "", err
		}
		return minio.NewStore(client, u.Host, ""), strings.TrimPrefix(u.Path, "/"), nil

	default:
		return nil, "", fmt.Errorf("source %s: unsupported scheme %q", raw, u.Scheme)
	}
}
