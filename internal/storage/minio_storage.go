package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioUploader stores objects in any S3-compatible service
type MinioUploader struct {
	client *minio.Client
	region string
}

// NewMinioUploader creates a client for the given endpoint. No request is
// made until the first upload.
func NewMinioUploader(endpoint, region, accessKey, secretKey string, useSSL bool) (*MinioUploader, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioUploader{client: cli, region: region}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (u *MinioUploader) EnsureBucket(ctx context.Context, bucketName string) error {
	exists, err := u.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("bucket lookup failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return fmt.Errorf("bucket creation failed: %w", err)
	}
	return nil
}

// Upload puts content under bucketName/fileName and returns the object URL
func (u *MinioUploader) Upload(ctx context.Context, fileName string, content []byte, bucketName string) (string, error) {
	_, err := u.client.PutObject(ctx, bucketName, fileName, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{
			ContentType: detectContentType(content),
		})
	if err != nil {
		return "", fmt.Errorf("minio upload failed: %w", err)
	}

	// Public URL if the bucket is public; private buckets need a presigned URL
	location := *u.client.EndpointURL()
	location.Path = path.Join("/", bucketName, fileName)
	return location.String(), nil
}
