// Package backups stores backup metadata in PostgreSQL.
package backups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, b *models.Backup) error {
	query := `
		INSERT INTO backups (id, user_id, device_id, storage_key, hash, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	res, err := r.db.ExecContext(ctx, query, b.ID, b.UserID, b.DeviceID, b.StorageKey, b.Hash, b.SizeBytes, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectRows(res, 1)
}

// Latest returns the newest backup of the user, limited to one device when
// deviceID is not empty.
func (r *PostgresRepository) Latest(ctx context.Context, userID, deviceID string) (*models.Backup, error) {
	query := `
		SELECT id, user_id, device_id, storage_key, hash, size_bytes, created_at
		FROM backups
		WHERE user_id = $1 AND ($2 = '' OR device_id = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`
	b := &models.Backup{}
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).
		Scan(&b.ID, &b.UserID, &b.DeviceID, &b.StorageKey, &b.Hash, &b.SizeBytes, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select backup: %w", err)
	}
	return b, nil
}
