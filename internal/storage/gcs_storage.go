package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSUploader stores objects in Google Cloud Storage
type GCSUploader struct {
	client *gcs.Client
}

// NewGCSUploader creates a GCS client. Without a credentials file the
// application default credentials are used.
func NewGCSUploader(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*GCSUploader, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSUploader{client: client}, nil
}

// Upload writes content to gs://bucketName/fileName, replacing any existing
// object with the same name.
func (u *GCSUploader) Upload(ctx context.Context, fileName string, content []byte, bucketName string) (string, error) {
	w := u.client.Bucket(bucketName).Object(fileName).NewWriter(ctx)
	w.ContentType = detectContentType(content)

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	// The object is only committed once Close returns without error
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload failed: %w", err)
	}

	return GCSLocation(bucketName, fileName), nil
}

// Close releases the underlying client
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// GCSLocation formats the gs:// reference of an object
func GCSLocation(bucketName, fileName string) string {
	return fmt.Sprintf("gs://%s/%s", bucketName, fileName)
}
