package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/backups"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Records(db dbx.DBTX) records.Repository
	Backups(db dbx.DBTX) backups.Repository
}
