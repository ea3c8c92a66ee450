package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"spmirror/internal/core"
)

// S3Config configures the S3-backed blob store, parsed from a
// storage.blob_root value of the form "s3://bucket/prefix".
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3BlobStore stores blobs as S3 objects keyed by the same two-level
// fan-out layout as FilesystemBlobStore, uploaded with the multipart
// manager. Put reads the whole content into memory to hash it before
// uploading.
type S3BlobStore struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3BlobStore builds an S3BlobStore from cfg.
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3BlobStore{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3BlobStore) key(sha256hex string) string {
	k := fmt.Sprintf("%s/%s/%s", sha256hex[0:2], sha256hex[2:4], sha256hex)
	if s.prefix != "" {
		return s.prefix + "/" + k
	}
	return k
}

func (s *S3BlobStore) Put(r io.Reader, mimeHint string) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", core.StorageError("Put", err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	mime := mimeHint
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}

	ctx := context.Background()
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(checksum)),
	}); err == nil {
		return checksum, int64(len(data)), mime, nil
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(checksum)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("uploading to s3: %w", err))
	}

	return checksum, int64(len(data)), mime, nil
}

func (s *S3BlobStore) Open(sha256hex string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sha256hex)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, core.NotFoundError("Open", fmt.Errorf("blob not found: %s", sha256hex))
		}
		return nil, core.StorageError("Open", err)
	}
	return out.Body, nil
}

func (s *S3BlobStore) Delete(sha256hex string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sha256hex)),
	})
	if err != nil {
		return core.StorageError("Delete", err)
	}
	return nil
}

func (s *S3BlobStore) Verify(sha256hex string, expectedSize int64) (core.VerifyResult, error) {
	r, err := s.Open(sha256hex)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return core.VerifyMissing, nil
		}
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", core.StorageError("Verify", err)
	}
	if size != expectedSize || hex.EncodeToString(h.Sum(nil)) != sha256hex {
		return core.VerifyCorrupt, nil
	}
	return core.VerifyOK, nil
}

var _ core.BlobStore = (*S3BlobStore)(nil)
