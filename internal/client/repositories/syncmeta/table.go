// Package syncmeta holds the SQL shared by every syncable table: the outbox
// columns, their scanning, and the statements of the sync contract that
// only depend on a table's name and key columns.
package syncmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Columns lists the outbox columns in the order Scanner and Args use.
const Columns = "server_id, last_synced_at, pending_sync, sync_operation, created_at, updated_at"

// ArmUpdate is the SET fragment a domain UPDATE appends to arm the outbox in
// the same statement. It takes one argument: the mutation time in millis.
const ArmUpdate = `pending_sync = 1,
	sync_operation = CASE WHEN sync_operation = 'CREATE' THEN 'CREATE' ELSE 'UPDATE' END,
	updated_at = MAX(updated_at + 1, ?)`

// Table describes one syncable table by name and primary-key columns.
type Table struct {
	Name string
	Key  []string
}

func (t Table) where() string {
	parts := make([]string, len(t.Key))
	for i, k := range t.Key {
		parts[i] = k + " = ?"
	}
	return strings.Join(parts, " AND ")
}

// Scanner receives the outbox columns of one row.
type Scanner struct {
	serverID   sql.NullString
	lastSynced sql.NullInt64
	pending    bool
	op         string
	created    int64
	updated    int64
}

// Dest returns scan destinations matching Columns.
func (s *Scanner) Dest() []any {
	return []any{&s.serverID, &s.lastSynced, &s.pending, &s.op, &s.created, &s.updated}
}

// Into copies the scanned values into m.
func (s *Scanner) Into(m *models.SyncMeta) error {
	op, err := models.ParseSyncOperation(s.op)
	if err != nil {
		return err
	}
	m.ServerID = s.serverID.String
	m.LastSyncedAt = timex.FromMillis(s.lastSynced.Int64)
	m.PendingSync = s.pending
	m.SyncOperation = op
	m.CreatedAt = timex.FromMillis(s.created)
	m.UpdatedAt = timex.FromMillis(s.updated)
	return nil
}

// Args renders m as values for Columns.
func Args(m *models.SyncMeta) []any {
	op := m.SyncOperation
	if op == "" {
		op = models.SyncNone
	}
	return []any{NullString(m.ServerID), NullMillis(m.LastSyncedAt), m.PendingSync, string(op),
		timex.ToMillis(m.CreatedAt), timex.ToMillis(m.UpdatedAt)}
}

func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func NullMillis(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: timex.ToMillis(t), Valid: !t.IsZero()}
}

// NotFound wraps common.ErrNotFound for a table and key.
func NotFound(table, key string) error {
	return fmt.Errorf("%s[%s]: %w", table, key, common.ErrNotFound)
}

// Conflict wraps common.ErrConflict for a table and key, keeping the driver
// error in the message.
func Conflict(table, key string, err error) error {
	return fmt.Errorf("%s[%s]: %w: %v", table, key, common.ErrConflict, err)
}

// IsUniqueViolation reports whether err is SQLite rejecting a duplicate in
// a UNIQUE column or index.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// Exec runs a single-row statement. Zero affected rows map to not found and
// unique violations to a conflict.
func Exec(ctx context.Context, db dbx.DBTX, table, key, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if IsUniqueViolation(err) {
		return Conflict(table, key, err)
	}
	if err != nil {
		return fmt.Errorf("%s[%s]: %w", table, key, err)
	}
	if err := dbx.ExpectRows(res, 1); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return NotFound(table, key)
		}
		return fmt.Errorf("%s[%s]: %w", table, key, err)
	}
	return nil
}

// UpdateSyncMetadata writes the outbox columns for one row. A server id is
// bound only if none is bound yet; an empty serverID leaves it unchanged.
func (t Table) UpdateSyncMetadata(ctx context.Context, db dbx.DBTX, key string, keyArgs []any,
	serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error {
	query := fmt.Sprintf(`UPDATE %s SET server_id = COALESCE(server_id, ?), last_synced_at = COALESCE(?, last_synced_at),
		pending_sync = ?, sync_operation = ? WHERE %s`, t.Name, t.where())
	args := append([]any{NullString(serverID), NullMillis(lastSyncedAt), pending, string(op)}, keyArgs...)
	return Exec(ctx, db, t.Name, key, query, args...)
}

// MarkPending arms the outbox for one row. An un-pushed CREATE stays CREATE
// when op is UPDATE, and updated_at never moves backwards.
func (t Table) MarkPending(ctx context.Context, db dbx.DBTX, key string, keyArgs []any,
	op models.SyncOperation, updatedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET pending_sync = 1,
		sync_operation = CASE WHEN sync_operation = 'CREATE' AND ? = 'UPDATE' THEN 'CREATE' ELSE ? END,
		updated_at = MAX(updated_at + 1, ?) WHERE %s`, t.Name, t.where())
	args := append([]any{string(op), string(op), timex.ToMillis(updatedAt)}, keyArgs...)
	return Exec(ctx, db, t.Name, key, query, args...)
}

// Delete removes a row the server has never seen, or turns a pushed row
// into a DELETE tombstone. It reports whether the row was hard-deleted.
func (t Table) Delete(ctx context.Context, db dbx.DBTX, key string, keyArgs []any, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s AND server_id IS NULL`, t.Name, t.where()), keyArgs...)
	if err != nil {
		return false, fmt.Errorf("%s[%s]: delete: %w", t.Name, key, err)
	}
	if err := dbx.ExpectRows(res, 1); err == nil {
		return true, nil
	}
	return false, t.MarkPending(ctx, db, key, keyArgs, models.SyncDelete, now)
}

// Acknowledge records that the server accepted the version of a row stamped
// pushedAt. The outbox is cleared only if the row was not mutated again since
// it was read for the push; a newer mutation stays pending. The server id is
// bound either way.
func (t Table) Acknowledge(ctx context.Context, db dbx.DBTX, key string, keyArgs []any,
	serverID string, pushedAt, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET server_id = COALESCE(server_id, ?), last_synced_at = ?,
		pending_sync = CASE WHEN updated_at = ? THEN 0 ELSE pending_sync END,
		sync_operation = CASE WHEN updated_at = ? THEN 'NONE' ELSE sync_operation END
		WHERE %s`, t.Name, t.where())
	pushed := timex.ToMillis(pushedAt)
	args := append([]any{NullString(serverID), timex.ToMillis(now), pushed, pushed}, keyArgs...)
	return Exec(ctx, db, t.Name, key, query, args...)
}

// PurgeVersion deletes a row only while its updated_at still equals
// updatedAt, so a row mutated or revived after it was read survives.
func (t Table) PurgeVersion(ctx context.Context, db dbx.DBTX, key string, keyArgs []any, updatedAt time.Time) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s AND updated_at = ?`, t.Name, t.where())
	args := append(append([]any{}, keyArgs...), timex.ToMillis(updatedAt))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s[%s]: purge: %w", t.Name, key, err)
	}
	return nil
}

// Touch refreshes last_synced_at and binds serverID if none is bound yet.
// Outbox state is left alone.
func (t Table) Touch(ctx context.Context, db dbx.DBTX, key string, keyArgs []any, serverID string, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET server_id = COALESCE(server_id, ?), last_synced_at = ? WHERE %s`, t.Name, t.where())
	args := append([]any{NullString(serverID), timex.ToMillis(now)}, keyArgs...)
	return Exec(ctx, db, t.Name, key, query, args...)
}

// Purge hard-deletes one row.
func (t Table) Purge(ctx context.Context, db dbx.DBTX, key string, keyArgs []any) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, t.Name, t.where()), keyArgs...)
	if err != nil {
		return fmt.Errorf("%s[%s]: purge: %w", t.Name, key, err)
	}
	return nil
}

// DeleteOlderThan removes synced rows created before cutoff. Pending rows,
// tombstones included, are never touched. Each keep condition is ANDed into
// the statement, typically a NOT EXISTS that spares rows still referenced.
func (t Table) DeleteOlderThan(ctx context.Context, db dbx.DBTX, cutoff time.Time, keep ...string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE pending_sync = 0 AND created_at < ?`, t.Name)
	for _, k := range keep {
		query += " AND " + k
	}
	res, err := db.ExecContext(ctx, query, timex.ToMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%s: retention: %w", t.Name, err)
	}
	return res.RowsAffected()
}

func (t Table) CountPending(ctx context.Context, db dbx.DBTX) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE pending_sync = 1`, t.Name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: count pending: %w", t.Name, err)
	}
	return n, nil
}

// ScanErr maps sql.ErrNoRows to a not-found error for key.
func ScanErr(table, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(table, key)
	}
	return fmt.Errorf("%s[%s]: %w", table, key, err)
}
