// Package server wires the FinanceHub sync server: PostgreSQL storage,
// presigned S3 backups and the gRPC endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/financehub/internal/logging"
	"github.com/dmitrijs2005/financehub/internal/server/auth"
	"github.com/dmitrijs2005/financehub/internal/server/config"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/financehub/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/financehub/internal/server/grpc"
)

// Runner is anything App runs until its context is done.
type Runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server Runner
	closer io.Closer
}

var openDB = repomanager.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger, closer: closer}
	if c.IssueToken != "" {
		return app, nil
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		closer.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	ss := services.NewSyncService(db, rm, logger)
	bs := services.NewBackupService(db, rm, c, logger)

	app.db = db
	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, ss, bs, c.SecretKey)
	return app, nil
}

// IssueToken prints a device token for the configured user id to w.
func (app *App) IssueToken(w io.Writer) error {
	token, err := auth.GenerateToken(app.config.IssueToken, []byte(app.config.SecretKey), app.config.TokenValidity)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// Run serves until ctx is done or SIGINT/SIGTERM/SIGQUIT arrives. When the
// config asks for a token it prints one instead.
func (app *App) Run(ctx context.Context) error {
	if app.config.IssueToken != "" {
		return app.IssueToken(os.Stdout)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) Close() error {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close", "error", err)
		}
	}
	return app.closer.Close()
}
