package repository

import (
	"context"

	"github.com/anime-shed/image-analyser-go/pkg/models"
)

// UploadHistoryRepository persists upload history records
type UploadHistoryRepository interface {
	// Save stores a new record. An empty ID and a zero CreatedAt are filled in
	// before the insert.
	Save(ctx context.Context, record *models.UploadHistory) error

	// List returns records for an owner, newest first
	List(ctx context.Context, owner string, limit, offset int) ([]*models.UploadHistory, error)

	// Get retrieves a single record by ID
	Get(ctx context.Context, id string) (*models.UploadHistory, error)

	// Ping checks the connection to the store
	Ping(ctx context.Context) error
}
