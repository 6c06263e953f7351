package client

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("tableExists query failed: %v", err)
	}
	return n > 0
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	db, err := InitDatabase(ctx, dsn)
	if err != nil {
		t.Fatalf("InitDatabase error: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("db.PingContext failed: %v", err)
	}

	for _, name := range []string{"goose_db_version", "metadata", "expenses", "tags", "targets", "expense_tags", "graph_edges"} {
		if !tableExists(t, db, name) {
			t.Fatalf("expected %s table to exist after migrations", name)
		}
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (first) error: %v", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (second) should be idempotent, got error: %v", err)
	}
}

func TestNewRepositories_SharesDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	repos := NewRepositories(db)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	e := &models.Expense{Title: "Coffee", Amount: 500, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, repos.Expenses.Create(ctx, e, now))
	require.NoError(t, repos.Metadata.Set(ctx, "k", "v"))

	n, err := repos.Expenses.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	v, ok, err := repos.Metadata.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestRepositories_CountPendingSumsEveryTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	repos := NewRepositories(db)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	e := &models.Expense{Title: "Coffee", Amount: 500, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, repos.Expenses.Create(ctx, e, now))
	tag := &models.Tag{Name: "food"}
	require.NoError(t, repos.Tags.Create(ctx, tag, now))
	require.NoError(t, repos.ExpenseTags.Link(ctx, e.ID, tag.ID, now))

	n, err := repos.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
