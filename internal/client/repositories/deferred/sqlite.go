// Package deferred parks pulled records whose references cannot be resolved
// yet, so later passes can apply them.
package deferred

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put parks e, replacing an older snapshot of the same record. The rescan
// mark survives only while the snapshot is unchanged.
func (r *SQLiteRepository) Put(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deferred_records (entity, server_id, record, reason, rescanned, deferred_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(entity, server_id) DO UPDATE SET
			rescanned = CASE WHEN record = excluded.record THEN rescanned ELSE 0 END,
			record = excluded.record,
			reason = excluded.reason
	`, e.Entity, e.ServerID, e.Record, e.Reason, timex.ToMillis(e.DeferredAt))
	if err != nil {
		return fmt.Errorf("failed to defer %s[%s]: %w", e.Entity, e.ServerID, err)
	}
	return nil
}

// List returns the parked records of one entity, oldest first.
func (r *SQLiteRepository) List(ctx context.Context, entity string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity, server_id, record, reason, rescanned, deferred_at
		FROM deferred_records WHERE entity = ? ORDER BY deferred_at, server_id`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to list deferred %s: %w", entity, err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		var at int64
		if err := rows.Scan(&e.Entity, &e.ServerID, &e.Record, &e.Reason, &e.Rescanned, &at); err != nil {
			return nil, fmt.Errorf("failed to scan deferred record: %w", err)
		}
		e.DeferredAt = timex.FromMillis(at)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, entity, serverID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM deferred_records WHERE entity = ? AND server_id = ?`, entity, serverID)
	if err != nil {
		return fmt.Errorf("failed to drop deferred %s[%s]: %w", entity, serverID, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkRescanned(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE deferred_records SET rescanned = 1 WHERE rescanned = 0`); err != nil {
		return fmt.Errorf("failed to mark deferred records: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountUnscanned(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deferred_records WHERE rescanned = 0`)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deferred_records`)
}

func (r *SQLiteRepository) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deferred records: %w", err)
	}
	return n, nil
}
