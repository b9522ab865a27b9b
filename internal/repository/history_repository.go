package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anime-shed/image-analyser-go/pkg/models"
)

const (
	insertHistory = `INSERT INTO upload_history (id, owner_tag, file_name, location, result, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

	selectHistoryColumns = `SELECT id, owner_tag, file_name, location, result, created_at FROM upload_history`
)

// SQLHistoryRepository implements UploadHistoryRepository on top of sqlx.
// Queries are written with '?' and rebound for the connection's driver.
type SQLHistoryRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLHistoryRepository creates a repository backed by db
func NewSQLHistoryRepository(db *sqlx.DB) *SQLHistoryRepository {
	return &SQLHistoryRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *SQLHistoryRepository) Save(ctx context.Context, record *models.UploadHistory) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(insertHistory),
		record.ID, record.Owner, record.FileName, record.Location, record.Result, record.CreatedAt)
	return err
}

func (r *SQLHistoryRepository) List(ctx context.Context, owner string, limit, offset int) ([]*models.UploadHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = selectHistoryColumns + `
WHERE owner_tag = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`

	out := []*models.UploadHistory{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), owner, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLHistoryRepository) Get(ctx context.Context, id string) (*models.UploadHistory, error) {
	const q = selectHistoryColumns + ` WHERE id = ?`

	var record models.UploadHistory
	if err := r.db.GetContext(ctx, &record, r.db.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *SQLHistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
