// Package graphedges persists the directed tag co-occurrence graph used for
// tag suggestions.
package graphedges

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/syncmeta"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var table = syncmeta.Table{Name: "graph_edges", Key: []string{"from_tag_id", "to_tag_id"}}

const selectColumns = `from_tag_id, to_tag_id, weight, ` + syncmeta.Columns

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.GraphEdge, error) {
	g := &models.GraphEdge{}
	var sm syncmeta.Scanner
	if err := row.Scan(append([]any{&g.FromTagID, &g.ToTagID, &g.Weight}, sm.Dest()...)...); err != nil {
		return nil, err
	}
	if err := sm.Into(&g.SyncMeta); err != nil {
		return nil, err
	}
	return g, nil
}

func keyArgs(clientID string) ([]any, error) {
	k, err := models.ParseCompositeID(clientID, 2)
	if err != nil {
		return nil, err
	}
	return []any{k[0], k[1]}, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.GraphEdge, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM graph_edges `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select graph edges: %w", err)
	}
	defer rows.Close()

	var result []*models.GraphEdge
	for rows.Next() {
		g, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph edge: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) get(ctx context.Context, key, where string, args ...any) (*models.GraphEdge, error) {
	g, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM graph_edges `+where, args...))
	if err != nil {
		return nil, syncmeta.ScanErr(table.Name, key, err)
	}
	return g, nil
}

// Bump adds delta to the edge weight, creating the edge when missing.
// Weights never drop below zero; a tombstoned edge is revived as an UPDATE.
func (r *SQLiteRepository) Bump(ctx context.Context, fromTagID, toTagID, delta int64, now time.Time) error {
	ms := timex.ToMillis(now)
	_, err := r.db.ExecContext(ctx, `INSERT INTO graph_edges (`+selectColumns+`)
		VALUES (?, ?, MAX(?, 0), NULL, NULL, 1, 'CREATE', ?, ?)
		ON CONFLICT(from_tag_id, to_tag_id) DO UPDATE SET
			weight = CASE WHEN graph_edges.sync_operation = 'DELETE' THEN MAX(excluded.weight, 0)
				ELSE MAX(graph_edges.weight + ?, 0) END,
			pending_sync = 1,
			sync_operation = CASE WHEN graph_edges.sync_operation = 'CREATE' THEN 'CREATE' ELSE 'UPDATE' END,
			updated_at = MAX(graph_edges.updated_at + 1, excluded.updated_at)`,
		fromTagID, toTagID, delta, ms, ms, delta)
	if err != nil {
		return fmt.Errorf("failed to bump edge %d->%d: %w", fromTagID, toTagID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, fromTagID, toTagID int64, now time.Time) (bool, error) {
	return table.Delete(ctx, r.db, fmt.Sprintf("%d-%d", fromTagID, toTagID), []any{fromTagID, toTagID}, now)
}

// ListFrom returns live outgoing edges, heaviest first.
func (r *SQLiteRepository) ListFrom(ctx context.Context, fromTagID int64) ([]*models.GraphEdge, error) {
	return r.query(ctx, `WHERE from_tag_id = ? AND sync_operation != 'DELETE' AND weight > 0
		ORDER BY weight DESC, to_tag_id`, fromTagID)
}

// ListTouching returns live edges in either direction.
func (r *SQLiteRepository) ListTouching(ctx context.Context, tagID int64) ([]*models.GraphEdge, error) {
	return r.query(ctx, `WHERE (from_tag_id = ? OR to_tag_id = ?) AND sync_operation != 'DELETE'
		ORDER BY from_tag_id, to_tag_id`, tagID, tagID)
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.GraphEdge, error) {
	return r.query(ctx, `WHERE pending_sync = 1 ORDER BY from_tag_id, to_tag_id`)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.GraphEdge, error) {
	return r.get(ctx, serverID, `WHERE server_id = ?`, serverID)
}

func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*models.GraphEdge, error) {
	k, err := keyArgs(clientID)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, clientID, `WHERE from_tag_id = ? AND to_tag_id = ?`, k...)
}

func (r *SQLiteRepository) Insert(ctx context.Context, g *models.GraphEdge) error {
	args := append([]any{g.FromTagID, g.ToTagID, g.Weight}, syncmeta.Args(&g.SyncMeta)...)
	_, err := r.db.ExecContext(ctx, `INSERT INTO graph_edges (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert graph edge: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateDomainFields(ctx context.Context, clientID string, g *models.GraphEdge) error {
	k, err := keyArgs(clientID)
	if err != nil {
		return err
	}
	args := append([]any{g.Weight, timex.ToMillis(g.UpdatedAt)}, k...)
	return syncmeta.Exec(ctx, r.db, table.Name, clientID,
		`UPDATE graph_edges SET weight = ?, updated_at = ?
		 WHERE from_tag_id = ? AND to_tag_id = ? AND pending_sync = 0`, args...)
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
