package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureUploader stores objects as block blobs. The bucket name passed to
// Upload is used as the container name.
type AzureUploader struct {
	client *azblob.Client
}

func NewAzureUploader(accountName string, accountKey string) (*AzureUploader, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureUploader{client: client}, nil
}

func (u *AzureUploader) Upload(ctx context.Context, fileName string, content []byte, bucketName string) (string, error) {
	contentType := detectContentType(content)

	_, err := u.client.UploadBuffer(ctx, bucketName, fileName, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(u.client.URL(), "/"), bucketName, fileName), nil
}
