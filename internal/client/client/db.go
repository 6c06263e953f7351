package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/client/migrations"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/deferred"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/expenses"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/expensetags"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/graphedges"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/tags"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/targets"
	"github.com/dmitrijs2005/financehub/internal/dbx"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Metadata    metadata.Repository
	Expenses    expenses.Repository
	Tags        tags.Repository
	Targets     targets.Repository
	ExpenseTags expensetags.Repository
	GraphEdges  graphedges.Repository
	Deferred    deferred.Repository
}

// NewRepositories binds every local repository to db, which may be a
// transaction.
func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Metadata:    metadata.NewSQLiteRepository(db),
		Expenses:    expenses.NewSQLiteRepository(db),
		Tags:        tags.NewSQLiteRepository(db),
		Targets:     targets.NewSQLiteRepository(db),
		ExpenseTags: expensetags.NewSQLiteRepository(db),
		GraphEdges:  graphedges.NewSQLiteRepository(db),
		Deferred:    deferred.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// InitDatabase opens the SQLite file at dsn and brings its schema up to
// date. SQLite serializes writers, so the pool keeps a single connection.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CountPending sums the outbox of every entity table.
func (r *Repositories) CountPending(ctx context.Context) (int64, error) {
	counters := []interface {
		CountPending(context.Context) (int64, error)
	}{r.Expenses, r.Tags, r.Targets, r.ExpenseTags, r.GraphEdges}

	var total int64
	for _, c := range counters {
		n, err := c.CountPending(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
