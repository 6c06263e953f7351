// Package tags persists spending categories in the local SQLite store.
package tags

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/syncmeta"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var table = syncmeta.Table{Name: "tags", Key: []string{"id"}}

const selectColumns = `id, name, monthly_amount, current_month, current_year,
	created_day, created_month, created_year, ` + syncmeta.Columns

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.Tag, error) {
	t := &models.Tag{}
	var sm syncmeta.Scanner
	dest := append([]any{&t.ID, &t.Name, &t.MonthlyAmount, &t.CurrentMonth, &t.CurrentYear,
		&t.CreatedDay, &t.CreatedMonth, &t.CreatedYear}, sm.Dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := sm.Into(&t.SyncMeta); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM tags `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	var result []*models.Tag
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) get(ctx context.Context, key, where string, args ...any) (*models.Tag, error) {
	t, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tags `+where, args...))
	if err != nil {
		return nil, syncmeta.ScanErr(table.Name, key, err)
	}
	return t, nil
}

// Create inserts t as a pending CREATE. Creation date parts and the current
// accounting period default to now when unset.
func (r *SQLiteRepository) Create(ctx context.Context, t *models.Tag, now time.Time) error {
	if t.CreatedYear == 0 {
		t.CreatedDay, t.CreatedMonth, t.CreatedYear = now.Day(), int(now.Month()), now.Year()
	}
	if t.CurrentYear == 0 {
		t.CurrentMonth, t.CurrentYear = int(now.Month()), now.Year()
	}
	t.SyncMeta = models.SyncMeta{}
	t.Arm(models.SyncCreate, now)
	return r.Insert(ctx, t)
}

func (r *SQLiteRepository) Rename(ctx context.Context, id int64, name string, now time.Time) error {
	return syncmeta.Exec(ctx, r.db, table.Name, fmt.Sprint(id),
		`UPDATE tags SET name = ?, `+syncmeta.ArmUpdate+` WHERE id = ? AND sync_operation != 'DELETE'`,
		name, timex.ToMillis(now), id)
}

// AddMonthlyAmount adds delta to the tag's running total for (year, month).
// A later period restarts the total; an earlier one leaves it unchanged.
// The total never drops below zero.
func (r *SQLiteRepository) AddMonthlyAmount(ctx context.Context, id int64, year, month int, delta int64, now time.Time) error {
	period := year*12 + month
	return syncmeta.Exec(ctx, r.db, table.Name, fmt.Sprint(id),
		`UPDATE tags SET
			monthly_amount = CASE
				WHEN current_year * 12 + current_month = ? THEN MAX(monthly_amount + ?, 0)
				WHEN current_year * 12 + current_month < ? THEN MAX(?, 0)
				ELSE monthly_amount END,
			current_year = CASE WHEN current_year * 12 + current_month < ? THEN ? ELSE current_year END,
			current_month = CASE WHEN current_year * 12 + current_month < ? THEN ? ELSE current_month END,
			`+syncmeta.ArmUpdate+`
		 WHERE id = ? AND sync_operation != 'DELETE'`,
		period, delta, period, delta, period, year, period, month, timex.ToMillis(now), id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64, now time.Time) (bool, error) {
	return table.Delete(ctx, r.db, fmt.Sprint(id), []any{id}, now)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Tag, error) {
	return r.get(ctx, fmt.Sprint(id), `WHERE id = ?`, id)
}

// GetByName finds the live tag with exactly this name. Live names are
// unique.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	return r.get(ctx, name, `WHERE name = ? AND sync_operation != 'DELETE' ORDER BY id LIMIT 1`, name)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Tag, error) {
	return r.query(ctx, `WHERE sync_operation != 'DELETE' ORDER BY name, id`)
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.Tag, error) {
	return r.query(ctx, `WHERE pending_sync = 1 ORDER BY id`)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.Tag, error) {
	return r.get(ctx, serverID, `WHERE server_id = ?`, serverID)
}

func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*models.Tag, error) {
	id, err := models.ParseID(clientID)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteRepository) Insert(ctx context.Context, t *models.Tag) error {
	var id any
	if t.ID != 0 {
		id = t.ID
	}
	args := append([]any{id, t.Name, t.MonthlyAmount, t.CurrentMonth, t.CurrentYear,
		t.CreatedDay, t.CreatedMonth, t.CreatedYear}, syncmeta.Args(&t.SyncMeta)...)
	res, err := r.db.ExecContext(ctx, `INSERT INTO tags (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if syncmeta.IsUniqueViolation(err) {
		return syncmeta.Conflict(table.Name, t.Name, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get tag id: %w", err)
	}
	t.ID = newID
	return nil
}

func (r *SQLiteRepository) UpdateDomainFields(ctx context.Context, clientID string, t *models.Tag) error {
	id, err := models.ParseID(clientID)
	if err != nil {
		return err
	}
	return syncmeta.Exec(ctx, r.db, table.Name, clientID,
		`UPDATE tags SET name = ?, monthly_amount = ?, current_month = ?, current_year = ?,
			created_day = ?, created_month = ?, created_year = ?, updated_at = ?
		 WHERE id = ? AND pending_sync = 0`,
		t.Name, t.MonthlyAmount, t.CurrentMonth, t.CurrentYear,
		t.CreatedDay, t.CreatedMonth, t.CreatedYear, timex.ToMillis(t.UpdatedAt), id)
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

// DeleteOlderThan spares tags that a link, target or edge still refers to.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return table.DeleteOlderThan(ctx, r.db, cutoff,
		`NOT EXISTS (SELECT 1 FROM expense_tags l WHERE l.tag_id = tags.id)`,
		`NOT EXISTS (SELECT 1 FROM targets t WHERE t.tag_id = tags.id)`,
		`NOT EXISTS (SELECT 1 FROM graph_edges g WHERE g.from_tag_id = tags.id OR g.to_tag_id = tags.id)`)
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	return table.CountPending(ctx, r.db)
}
