package storage

import (
	"context"

	"github.com/gabriel-vasile/mimetype"
)

// Uploader writes raw bytes to object storage and returns a reference to the
// stored object.
type Uploader interface {
	Upload(ctx context.Context, fileName string, content []byte, bucketName string) (string, error)
}

// detectContentType sniffs the MIME type from the content itself; file
// names sent by clients are not trusted for this.
func detectContentType(content []byte) string {
	return mimetype.Detect(content).String()
}
