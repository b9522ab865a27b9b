package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemas = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS upload_history (
  id         VARCHAR(36)   PRIMARY KEY,
  owner_tag  VARCHAR(255)  NOT NULL,
  file_name  VARCHAR(1024) NOT NULL,
  location   VARCHAR(2048) NOT NULL,
  result     TEXT          NOT NULL,
  created_at TIMESTAMPTZ   NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_upload_history_owner_created
  ON upload_history (owner_tag, created_at)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS upload_history (
  id         VARCHAR(36)   NOT NULL PRIMARY KEY,
  owner_tag  VARCHAR(255)  NOT NULL,
  file_name  VARCHAR(1024) NOT NULL,
  location   VARCHAR(2048) NOT NULL,
  result     LONGTEXT      NOT NULL,
  created_at DATETIME(6)   NOT NULL,
  INDEX idx_upload_history_owner_created (owner_tag, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// EnsureSchema creates the upload_history table for the connection's driver.
// It is safe to run on every start.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, db.DriverName())
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
