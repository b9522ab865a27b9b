package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Analysis step orderings
const (
	OrderAnalyseFirst = "analyse_first"
	OrderStoreFirst   = "store_first"
)

// Storage backends
const (
	StorageGCS   = "gcs"
	StorageMinio = "minio"
	StorageAzure = "azure"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DefaultOwnerTag is written to every upload history record until callers
// are authenticated.
const DefaultOwnerTag = "test"

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64

	AnalysisOrder string
	OwnerTag      string

	Vision   VisionConfig
	Storage  StorageConfig
	Database DatabaseConfig

	LogLevel  string
	LogFormat string
}

type VisionConfig struct {
	CredentialsFile string
	Endpoint        string
}

type StorageConfig struct {
	Backend            string
	Bucket             string
	GCSCredentialsFile string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioRegion    string
	MinioUseSSL    bool

	AzureAccountName string
	AzureAccountKey  string
}

type DatabaseConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("IMAGE_FETCH_TIMEOUT", "15s")
	v.SetDefault("ANALYSIS_TIMEOUT", "20s")
	v.SetDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024) // 10MB

	v.SetDefault("ANALYSIS_ORDER", OrderAnalyseFirst)
	v.SetDefault("OWNER_TAG", DefaultOwnerTag)

	v.SetDefault("STORAGE_BACKEND", StorageGCS)
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", true)

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func LoadFromEnv() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:               strings.TrimSpace(v.GetString("HOST")),
		Port:               strings.TrimSpace(v.GetString("PORT")),
		RequestTimeout:     v.GetDuration("REQUEST_TIMEOUT"),
		ImageFetchTimeout:  v.GetDuration("IMAGE_FETCH_TIMEOUT"),
		AnalysisTimeout:    v.GetDuration("ANALYSIS_TIMEOUT"),
		MaxRequestBodySize: v.GetInt64("MAX_REQUEST_BODY_SIZE"),
		AnalysisOrder:      strings.ToLower(strings.TrimSpace(v.GetString("ANALYSIS_ORDER"))),
		OwnerTag:           v.GetString("OWNER_TAG"),
		Vision: VisionConfig{
			CredentialsFile: v.GetString("VISION_CREDENTIALS_FILE"),
			Endpoint:        v.GetString("VISION_ENDPOINT"),
		},
		Storage: StorageConfig{
			Backend:            strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
			Bucket:             strings.TrimSpace(v.GetString("STORAGE_BUCKET")),
			GCSCredentialsFile: v.GetString("GCS_CREDENTIALS_FILE"),
			MinioEndpoint:      v.GetString("MINIO_ENDPOINT"),
			MinioAccessKey:     v.GetString("MINIO_ACCESS_KEY"),
			MinioSecretKey:     v.GetString("MINIO_SECRET_KEY"),
			MinioRegion:        v.GetString("MINIO_REGION"),
			MinioUseSSL:        v.GetBool("MINIO_USE_SSL"),
			AzureAccountName:   v.GetString("AZURE_ACCOUNT_NAME"),
			AzureAccountKey:    v.GetString("AZURE_ACCOUNT_KEY"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:         v.GetString("DB_DSN"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server settings and the enumerated options.
// Collaborator credentials are checked when the clients are built.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(c.Port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}

	switch c.AnalysisOrder {
	case OrderAnalyseFirst, OrderStoreFirst:
	default:
		return fmt.Errorf("invalid ANALYSIS_ORDER: %q", c.AnalysisOrder)
	}

	switch c.Storage.Backend {
	case StorageGCS, StorageMinio, StorageAzure:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.Storage.Backend)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("invalid DB_DRIVER: %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	return nil
}
