// Package records stores synced entity records in PostgreSQL.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts rec keyed by (user, device, entity, client id) and returns
// the server id. Replaying a create returns the existing id; the stored
// payload is only replaced when the replay is not older than it and any
// soft delete is lifted.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.Record) (string, error) {
	query := `
		INSERT INTO records (id, user_id, device_id, entity, client_id, payload, created_at, updated_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, device_id, entity, client_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at,
			modified_at = EXCLUDED.modified_at,
			deleted_at = NULL
			WHERE records.updated_at <= EXCLUDED.updated_at
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.UserID, rec.DeviceID, rec.Entity, rec.ClientID, rec.Payload,
		rec.CreatedAt, rec.UpdatedAt, rec.ModifiedAt).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("db error: %w", err)
	}

	// The stored copy is newer; the replay still learns its id.
	query = `SELECT id FROM records WHERE user_id=$1 AND device_id=$2 AND entity=$3 AND client_id=$4`
	if err := r.db.QueryRowContext(ctx, query, rec.UserID, rec.DeviceID, rec.Entity, rec.ClientID).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to select record id: %w", err)
	}
	return id, nil
}

// Update merges rec.Payload into the stored payload of the record rec.ID
// and lifts a soft delete. It reports false without error when the stored
// copy is newer than rec.UpdatedAt, and common.ErrNotFound when the user
// has no such record.
func (r *PostgresRepository) Update(ctx context.Context, rec *models.Record) (bool, error) {
	query := `
		UPDATE records SET
			payload = payload || $1::jsonb,
			updated_at = $2,
			modified_at = $3,
			deleted_at = NULL
		WHERE id = $4 AND user_id = $5 AND entity = $6 AND updated_at <= $2
	`
	res, err := r.db.ExecContext(ctx, query, rec.Payload, rec.UpdatedAt, rec.ModifiedAt, rec.ID, rec.UserID, rec.Entity)
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}
	err = dbx.ExpectRows(res, 1)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, dbx.ErrNoRowsAffected) {
		return false, err
	}

	var exists bool
	query = `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1 AND user_id = $2 AND entity = $3)`
	if err := r.db.QueryRowContext(ctx, query, rec.ID, rec.UserID, rec.Entity).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	if !exists {
		return false, common.ErrNotFound
	}
	return false, nil
}

// SoftDelete marks the record deleted. Deleting an already deleted or
// unknown record is a no-op.
func (r *PostgresRepository) SoftDelete(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE records SET
			deleted_at = $1,
			modified_at = $1,
			updated_at = GREATEST(updated_at, $2)
		WHERE id = $3 AND user_id = $4 AND entity = $5 AND deleted_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, rec.ModifiedAt, rec.UpdatedAt, rec.ID, rec.UserID, rec.Entity); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// SelectModifiedSince returns the user's records, deleted ones included,
// whose server modification time is after since.
func (r *PostgresRepository) SelectModifiedSince(ctx context.Context, userID string, since int64) ([]*models.Record, error) {
	query := `
		SELECT id, user_id, device_id, entity, client_id, payload, created_at, updated_at, modified_at, deleted_at
		FROM records
		WHERE user_id = $1 AND modified_at > $2
		ORDER BY modified_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		var item models.Record
		var deletedAt sql.NullInt64
		if err := rows.Scan(&item.ID, &item.UserID, &item.DeviceID, &item.Entity, &item.ClientID, &item.Payload,
			&item.CreatedAt, &item.UpdatedAt, &item.ModifiedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			item.DeletedAt = &deletedAt.Int64
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
