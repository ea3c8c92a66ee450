package blobstore

import (
	"context"
	"fmt"
	"strings"

	"spmirror/internal/core"
)

// NewFromBlobRoot builds a BlobStore from a storage.blob_root value. A
// plain path creates a FilesystemBlobStore; an "s3://bucket/prefix" URL
// creates an S3BlobStore using ambient AWS credentials (region and
// access keys may additionally be set via the accessKeyID/secretKey
// arguments, mirroring the teacher's S3Vault configuration fields).
func NewFromBlobRoot(ctx context.Context, blobRoot, region, accessKeyID, secretKey string) (core.BlobStore, error) {
	if bucket, prefix, ok := parseS3URL(blobRoot); ok {
		return NewS3BlobStore(ctx, S3Config{
			Bucket:          bucket,
			Prefix:          prefix,
			Region:          region,
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretKey,
		})
	}
	if blobRoot == "" {
		return nil, fmt.Errorf("storage.blob_root must be set")
	}
	return NewFilesystemBlobStore(blobRoot)
}

func parseS3URL(blobRoot string) (bucket, prefix string, ok bool) {
	const scheme = "s3://"
	if !strings.HasPrefix(blobRoot, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(blobRoot, scheme)
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return bucket, prefix, true
}
