package factory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/logger"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// GCSStorage for Google Cloud Storage
	GCSStorage StorageType = config.StorageGCS
	// MinioStorage for S3-compatible object stores
	MinioStorage StorageType = config.StorageMinio
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = config.StorageAzure
)

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateUploader(ctx context.Context, cfg config.StorageConfig) (storage.Uploader, error)
}

// RepositoryFactory opens the history store
type RepositoryFactory interface {
	CreateRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.UploadHistoryRepository, *sqlx.DB, error)
}

// storageFactory implements StorageFactory
type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateUploader creates an uploader for cfg.Backend. A minio bucket is
// created on the spot if it is missing.
func (f *storageFactory) CreateUploader(ctx context.Context, cfg config.StorageConfig) (storage.Uploader, error) {
	switch StorageType(cfg.Backend) {
	case GCSStorage:
		return storage.NewGCSUploader(ctx, cfg.GCSCredentialsFile)
	case MinioStorage:
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required for the minio backend")
		}
		uploader, err := storage.NewMinioUploader(cfg.MinioEndpoint, cfg.MinioRegion, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		if err := uploader.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, err
		}
		return uploader, nil
	case AzureStorage:
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, fmt.Errorf("AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY are required for the azure backend")
		}
		return storage.NewAzureUploader(cfg.AzureAccountName, cfg.AzureAccountKey)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}

type repositoryFactory struct {
	connect func(ctx context.Context, driver, dsn string) (*sqlx.DB, error)
}

// NewRepositoryFactory creates a factory backed by repository.Connect
func NewRepositoryFactory() RepositoryFactory {
	return &repositoryFactory{connect: repository.Connect}
}

// CreateRepository connects to the database and, when enabled, creates the
// upload_history table. The caller owns the returned *sqlx.DB.
func (f *repositoryFactory) CreateRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.UploadHistoryRepository, *sqlx.DB, error) {
	db, err := f.connect(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("schema migration failed: %w", err)
		}
		logger.WithField("driver", cfg.Driver).Info("Upload history schema ensured")
	}

	return repository.NewSQLHistoryRepository(db), db, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory    StorageFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:    NewStorageFactory(),
		RepositoryFactory: NewRepositoryFactory(),
	}
}
