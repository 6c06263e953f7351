// Package expensetags persists the many-to-many links between expenses and
// tags. Links have no mutable fields: they are only created or deleted.
package expensetags

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/syncmeta"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var table = syncmeta.Table{Name: "expense_tags", Key: []string{"expense_id", "tag_id"}}

const selectColumns = `expense_id, tag_id, ` + syncmeta.Columns

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.ExpenseTag, error) {
	l := &models.ExpenseTag{}
	var sm syncmeta.Scanner
	if err := row.Scan(append([]any{&l.ExpenseID, &l.TagID}, sm.Dest()...)...); err != nil {
		return nil, err
	}
	if err := sm.Into(&l.SyncMeta); err != nil {
		return nil, err
	}
	return l, nil
}

func keyArgs(clientID string) ([]any, error) {
	k, err := models.ParseCompositeID(clientID, 2)
	if err != nil {
		return nil, err
	}
	return []any{k[0], k[1]}, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.ExpenseTag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM expense_tags `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select expense tags: %w", err)
	}
	defer rows.Close()

	var result []*models.ExpenseTag
	for rows.Next() {
		l, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense tag: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) get(ctx context.Context, key, where string, args ...any) (*models.ExpenseTag, error) {
	l, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM expense_tags `+where, args...))
	if err != nil {
		return nil, syncmeta.ScanErr(table.Name, key, err)
	}
	return l, nil
}

// Link creates the link as a pending CREATE. Linking a live pair is a no-op;
// a tombstoned link is revived as CREATE.
func (r *SQLiteRepository) Link(ctx context.Context, expenseID, tagID int64, now time.Time) error {
	ms := timex.ToMillis(now)
	_, err := r.db.ExecContext(ctx, `INSERT INTO expense_tags (`+selectColumns+`)
		VALUES (?, ?, NULL, NULL, 1, 'CREATE', ?, ?)
		ON CONFLICT(expense_id, tag_id) DO UPDATE SET
			pending_sync = 1,
			sync_operation = 'CREATE',
			updated_at = MAX(expense_tags.updated_at + 1, excluded.updated_at)
		WHERE expense_tags.sync_operation = 'DELETE'`,
		expenseID, tagID, ms, ms)
	if err != nil {
		return fmt.Errorf("failed to link expense %d to tag %d: %w", expenseID, tagID, err)
	}
	return nil
}

func (r *SQLiteRepository) Unlink(ctx context.Context, expenseID, tagID int64, now time.Time) (bool, error) {
	return table.Delete(ctx, r.db, fmt.Sprintf("%d-%d", expenseID, tagID), []any{expenseID, tagID}, now)
}

func (r *SQLiteRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*models.ExpenseTag, error) {
	return r.query(ctx, `WHERE expense_id = ? AND sync_operation != 'DELETE' ORDER BY tag_id`, expenseID)
}

func (r *SQLiteRepository) ListByTag(ctx context.Context, tagID int64) ([]*models.ExpenseTag, error) {
	return r.query(ctx, `WHERE tag_id = ? AND sync_operation != 'DELETE' ORDER BY expense_id`, tagID)
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.ExpenseTag, error) {
	return r.query(ctx, `WHERE pending_sync = 1 ORDER BY expense_id, tag_id`)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.ExpenseTag, error) {
	return r.get(ctx, serverID, `WHERE server_id = ?`, serverID)
}

func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*models.ExpenseTag, error) {
	k, err := keyArgs(clientID)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, clientID, `WHERE expense_id = ? AND tag_id = ?`, k...)
}

func (r *SQLiteRepository) Insert(ctx context.Context, l *models.ExpenseTag) error {
	args := append([]any{l.ExpenseID, l.TagID}, syncmeta.Args(&l.SyncMeta)...)
	_, err := r.db.ExecContext(ctx, `INSERT INTO expense_tags (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert expense tag: %w", err)
	}
	return nil
}

// UpdateDomainFields only moves updated_at: a link has no other fields.
func (r *SQLiteRepository) UpdateDomainFields(ctx context.Context, clientID string, l *models.ExpenseTag) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	args := append([]any{timex.ToMillis(l.UpdatedAt)}, k...)
	return syncmeta.Exec(ctx, r.db, table.Name, clientID,
		`UPDATE expense_tags SET updated_at = ? WHERE expense_id = ? AND tag_id = ? AND pending_sync = 0`, args...)
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
