// Package expenses persists expenses in the local SQLite store.
package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/syncmeta"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var table = syncmeta.Table{Name: "expenses", Key: []string{"id"}}

const selectColumns = `id, title, amount, year, month, date, ` + syncmeta.Columns

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.Expense, error) {
	e := &models.Expense{}
	var sm syncmeta.Scanner
	dest := append([]any{&e.ID, &e.Title, &e.Amount, &e.Year, &e.Month, &e.Date}, sm.Dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := sm.Into(&e.SyncMeta); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM expenses `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select expenses: %w", err)
	}
	defer rows.Close()

	var result []*models.Expense
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) get(ctx context.Context, key, where string, args ...any) (*models.Expense, error) {
	e, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM expenses `+where, args...))
	if err != nil {
		return nil, syncmeta.ScanErr(table.Name, key, err)
	}
	return e, nil
}

// Create inserts e as a pending CREATE and sets e.ID.
func (r *SQLiteRepository) Create(ctx context.Context, e *models.Expense, now time.Time) error {
	e.SyncMeta = models.SyncMeta{}
	e.Arm(models.SyncCreate, now)
	return r.Insert(ctx, e)
}

// Update writes the domain fields of e and arms the outbox.
func (r *SQLiteRepository) Update(ctx context.Context, e *models.Expense, now time.Time) error {
	key := e.ClientID()
	err := syncmeta.Exec(ctx, r.db, table.Name, key,
		`UPDATE expenses SET title = ?, amount = ?, year = ?, month = ?, date = ?, `+syncmeta.ArmUpdate+`
		 WHERE id = ? AND sync_operation != 'DELETE'`,
		e.Title, e.Amount, e.Year, e.Month, e.Date, timex.ToMillis(now), e.ID)
	if err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	e.SyncMeta = fresh.SyncMeta
	return nil
}

// Delete removes an expense the server has never seen, or tombstones it.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64, now time.Time) (bool, error) {
	return table.Delete(ctx, r.db, fmt.Sprint(id), []any{id}, now)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Expense, error) {
	return r.get(ctx, fmt.Sprint(id), `WHERE id = ?`, id)
}

// List returns live expenses of a month, newest first. Year or month 0 means any.
func (r *SQLiteRepository) List(ctx context.Context, year, month int) ([]*models.Expense, error) {
	return r.query(ctx, `WHERE sync_operation != 'DELETE' AND (? = 0 OR year = ?) AND (? = 0 OR month = ?)
		ORDER BY year DESC, month DESC, date DESC, id DESC`, year, year, month, month)
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.Expense, error) {
	return r.query(ctx, `WHERE pending_sync = 1 ORDER BY id`)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.Expense, error) {
	return r.get(ctx, serverID, `WHERE server_id = ?`, serverID)
}

func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*models.Expense, error) {
	id, err := models.ParseID(clientID)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Insert stores e with its sync metadata as given. A zero e.ID lets SQLite
// assign one, which is written back to e.
func (r *SQLiteRepository) Insert(ctx context.Context, e *models.Expense) error {
	var id any
	if e.ID != 0 {
		id = e.ID
	}
	args := append([]any{id, e.Title, e.Amount, e.Year, e.Month, e.Date}, syncmeta.Args(&e.SyncMeta)...)
	res, err := r.db.ExecContext(ctx, `INSERT INTO expenses (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get expense id: %w", err)
	}
	e.ID = newID
	return nil
}

// UpdateDomainFields overwrites the row with remote domain values and
// updated_at. Rows that became pending in the meantime are left alone.
func (r *SQLiteRepository) UpdateDomainFields(ctx context.Context, clientID string, e *models.Expense) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return syncmeta.Exec(ctx, r.db, table.Name, clientID,
		`UPDATE expenses SET title = ?, amount = ?, year = ?, month = ?, date = ?, updated_at = ?
		 WHERE id = ? AND pending_sync = 0`,
		e.Title, e.Amount, e.Year, e.Month, e.Date, timex.ToMillis(e.UpdatedAt), id)
}

func (r *SQLiteRepository) UpdateSyncMetadata(ctx context.Context, clientID, serverID string,
	lastSyncedAt time.Time, pending bool, op models.SyncOperation) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.UpdateSyncMetadata(ctx, r.db, clientID, []any{id}, serverID, lastSyncedAt, pending, op)
}

func (r *SQLiteRepository) MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.MarkPending(ctx, r.db, clientID, []any{id}, op, updatedAt)
}

func (r *SQLiteRepository) Purge(ctx context.Context, clientID string) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.Purge(ctx, r.db, clientID, []any{id})
}

func (r *SQLiteRepository) Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.Acknowledge(ctx, r.db, clientID, []any{id}, serverID, pushedAt, now)
}

func (r *SQLiteRepository) PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.PurgeVersion(ctx, r.db, clientID, []any{id}, updatedAt)
}

func (r *SQLiteRepository) Touch(ctx context.Context, clientID, serverID string, now time.Time) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return table.Touch(ctx, r.db, clientID, []any{id}, serverID, now)
}

// DeleteOlderThan spares expenses that still have tag links.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return table.DeleteOlderThan(ctx, r.db, cutoff,
		`NOT EXISTS (SELECT 1 FROM expense_tags l WHERE l.expense_id = expenses.id)`)
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	return table.CountPending(ctx, r.db)
}
