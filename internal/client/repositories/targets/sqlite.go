// Package targets persists monthly spending targets, keyed by
// (month, year, tag).
package targets

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/syncmeta"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var table = syncmeta.Table{Name: "targets", Key: []string{"month", "year", "tag_id"}}

const selectColumns = `month, year, tag_id, amount, spent, ` + syncmeta.Columns

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.Target, error) {
	t := &models.Target{}
	var sm syncmeta.Scanner
	dest := append([]any{&t.Month, &t.Year, &t.TagID, &t.Amount, &t.Spent}, sm.Dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := sm.Into(&t.SyncMeta); err != nil {
		return nil, err
	}
	return t, nil
}

func keyArgs(clientID string) ([]any, error) {
	k, err := models.ParseCompositeID(clientID, 3)
	if err != nil {
		return nil, err
	}
	return []any{k[0], k[1], k[2]}, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Target, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM targets `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select targets: %w", err)
	}
	defer rows.Close()

	var result []*models.Target
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) get(ctx context.Context, key, where string, args ...any) (*models.Target, error) {
	t, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM targets `+where, args...))
	if err != nil {
		return nil, syncmeta.ScanErr(table.Name, key, err)
	}
	return t, nil
}

// Set creates the target or changes its amount. Spent is kept on update,
// and a tombstoned target comes back as an UPDATE.
func (r *SQLiteRepository) Set(ctx context.Context, t *models.Target, now time.Time) error {
	ms := timex.ToMillis(now)
	_, err := r.db.ExecContext(ctx, `INSERT INTO targets (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, 1, 'CREATE', ?, ?)
		ON CONFLICT(month, year, tag_id) DO UPDATE SET
			amount = excluded.amount,
			pending_sync = 1,
			sync_operation = CASE WHEN targets.sync_operation = 'CREATE' THEN 'CREATE' ELSE 'UPDATE' END,
			updated_at = MAX(targets.updated_at + 1, excluded.updated_at)`,
		t.Month, t.Year, t.TagID, t.Amount, t.Spent, ms, ms)
	if err != nil {
		return fmt.Errorf("failed to set target: %w", err)
	}
	fresh, err := r.Get(ctx, t.Month, t.Year, t.TagID)
	if err != nil {
		return err
	}
	*t = *fresh
	return nil
}

// AddSpent moves the spent counter by delta, never below zero.
func (r *SQLiteRepository) AddSpent(ctx context.Context, month, year int, tagID, delta int64, now time.Time) error {
	key := fmt.Sprintf("%d-%d-%d", month, year, tagID)
	return syncmeta.Exec(ctx, r.db, table.Name, key,
		`UPDATE targets SET spent = MAX(spent + ?, 0), `+syncmeta.ArmUpdate+`
		 WHERE month = ? AND year = ? AND tag_id = ? AND sync_operation != 'DELETE'`,
		delta, timex.ToMillis(now), month, year, tagID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, month, year int, tagID int64, now time.Time) (bool, error) {
	key := fmt.Sprintf("%d-%d-%d", month, year, tagID)
	return table.Delete(ctx, r.db, key, []any{month, year, tagID}, now)
}

func (r *SQLiteRepository) Get(ctx context.Context, month, year int, tagID int64) (*models.Target, error) {
	key := fmt.Sprintf("%d-%d-%d", month, year, tagID)
	return r.get(ctx, key, `WHERE month = ? AND year = ? AND tag_id = ?`, month, year, tagID)
}

func (r *SQLiteRepository) List(ctx context.Context, year, month int) ([]*models.Target, error) {
	return r.query(ctx, `WHERE sync_operation != 'DELETE' AND year = ? AND month = ? ORDER BY tag_id`, year, month)
}

func (r *SQLiteRepository) ListByTag(ctx context.Context, tagID int64) ([]*models.Target, error) {
	return r.query(ctx, `WHERE sync_operation != 'DELETE' AND tag_id = ? ORDER BY year, month`, tagID)
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.Target, error) {
	return r.query(ctx, `WHERE pending_sync = 1 ORDER BY year, month, tag_id`)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.Target, error) {
	return r.get(ctx, serverID, `WHERE server_id = ?`, serverID)
}

func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*models.Target, error) {
	k, err := keyArgs(clientID)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, clientID, `WHERE month = ? AND year = ? AND tag_id = ?`, k...)
}

func (r *SQLiteRepository) Insert(ctx context.Context, t *models.Target) error {
	args := append([]any{t.Month, t.Year, t.TagID, t.Amount, t.Spent}, syncmeta.Args(&t.SyncMeta)...)
	_, err := r.db.ExecContext(ctx, `INSERT INTO targets (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert target: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateDomainFields(ctx context.Context, clientID string, t *models.Target) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	args := append([]any{t.Amount, t.Spent, timex.ToMillis(t.UpdatedAt)}, k...)
	return syncmeta.Exec(ctx, r.db, table.Name, clientID,
		`UPDATE targets SET amount = ?, spent = ?, updated_at = ?
		 WHERE month = ? AND year = ? AND tag_id = ? AND pending_sync = 0`, args...)
}

func (r *SQLiteRepository) UpdateSyncMetadata(ctx context.Context, clientID, serverID string,
	lastSyncedAt time.Time, pending bool, op models.SyncOperation) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.UpdateSyncMetadata(ctx, r.db, clientID, k, serverID, lastSyncedAt, pending, op)
}

func (r *SQLiteRepository) MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.MarkPending(ctx, r.db, clientID, k, op, updatedAt)
}

func (r *SQLiteRepository) Purge(ctx context.Context, clientID string) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.Purge(ctx, r.db, clientID, k)
}

func (r *SQLiteRepository) Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.Acknowledge(ctx, r.db, clientID, k, serverID, pushedAt, now)
}

func (r *SQLiteRepository) PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.PurgeVersion(ctx, r.db, clientID, k, updatedAt)
}

func (r *SQLiteRepository) Touch(ctx context.Context, clientID, serverID string, now time.Time) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	return table.Touch(ctx, r.db, clientID, k, serverID, now)
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return table.DeleteOlderThan(ctx, r.db, cutoff)
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	return table.CountPending(ctx, r.db)
}
