// Package minio implements blobstore.BlobStore on the MinIO client, for
// MinIO and other S3-compatible object stores (Ceph, Garage, SeaweedFS)
// that are reachable without the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "datasets", "sift")
//	ch, err := vecfetch.OpenStore(ctx, store, "base.fvec", cacheDir)
//
// Blobs are fetched with ranged GETs pinned to the ETag observed by Open;
// an object replaced mid-download fails with blobstore.ErrChanged.
package minio
