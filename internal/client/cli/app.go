package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/config"
	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/scheduler"
	"github.com/dmitrijs2005/financehub/internal/client/services"
	"github.com/dmitrijs2005/financehub/internal/client/syncer"
	"github.com/dmitrijs2005/financehub/internal/logging"
	"github.com/dmitrijs2005/financehub/internal/metrics"
	"github.com/dmitrijs2005/financehub/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// App wires the local store, the sync machinery and the REPL.
type App struct {
	config    *config.Config
	log       logging.Logger
	db        *sql.DB
	remote    *client.GRPCClient
	state     *connectivity.State
	watermark *connectivity.WatermarkStore
	engine    *syncer.Engine
	scheduler *scheduler.Scheduler
	ledger    *services.LedgerService
	backup    *services.BackupService
	registry  *prometheus.Registry
	deviceID  string

	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time
}

func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	repos := client.NewRepositories(db)
	wm := connectivity.NewWatermarkStore(repos.Metadata)
	deviceID, err := wm.DeviceID(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	state := connectivity.NewState()
	if ms, err := wm.LastSync(ctx); err == nil && ms > 0 {
		state.SetLastSync(timex.FromMillis(ms))
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if c.DeviceName != "" {
		l = l.With("device", c.DeviceName)
	}
	registry := prometheus.NewRegistry()
	m := metrics.NewSyncMetrics(registry)

	retention := c.Retention
	if retention == 0 {
		retention = -1
	}
	engine := syncer.NewEngine(remote, repos, wm, state,
		syncer.Config{DeviceID: deviceID, BatchSize: c.BatchSize, Retention: retention},
		syncer.WithLogger(l), syncer.WithMetrics(m))

	sched := scheduler.New(engine, remote, connectivity.NewCommandDetector(c.NetworkCommand), state,
		scheduler.Config{
			TrustedNetworks: c.TrustedNetworks,
			CheckInterval:   c.CheckInterval,
			HealthTimeout:   c.HealthTimeout,
			BackoffFloor:    c.BackoffFloor,
			BackoffCap:      c.BackoffCap,
		},
		scheduler.WithLogger(l), scheduler.WithMetrics(m))

	a := &App{
		config:    c,
		log:       l.With("module", "cli"),
		db:        db,
		remote:    remote,
		state:     state,
		watermark: wm,
		engine:    engine,
		scheduler: sched,
		ledger:    services.NewLedgerService(db, state, l),
		backup:    services.NewBackupService(db, remote, wm, state, deviceID, c.BackupDir, l, m),
		registry:  registry,
		deviceID:  deviceID,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
		now:       time.Now,
	}

	if n, err := engine.PendingCount(ctx); err == nil {
		state.SetPending(n)
	}
	return a, nil
}

func (a *App) Close() error {
	return errors.Join(a.remote.Close(), a.db.Close())
}

// Run starts the background workers and the REPL. It returns when the user
// exits or ctx is cancelled; background workers are stopped either way.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.backup.Run(gctx, a.config.BackupInterval) })
	g.Go(func() error { watchStatus(gctx, a.state, a.log); return nil })
	if a.config.MetricsAddr != "" {
		srv := metrics.NewServer(a.config.MetricsAddr, a.registry, a.log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	go func() {
		fmt.Fprintf(a.out, "FinanceHub (device %s). Type 'help' for commands.\n", a.deviceID)
		runREPL(gctx, a, a.status, a.reader)
		cancel()
	}()

	return g.Wait()
}

// watchStatus logs every connectivity or phase transition.
func watchStatus(ctx context.Context, st *connectivity.State, l logging.Logger) {
	updates, unsubscribe := st.Subscribe()
	defer unsubscribe()

	var prev connectivity.Snapshot
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if first || s.Trusted != prev.Trusted || s.Reachable != prev.Reachable || s.Phase != prev.Phase {
				l.Info(ctx, "sync status", "trusted", s.Trusted, "reachable", s.Reachable,
					"phase", s.Phase, "pending", s.Pending, "last_error", s.LastError)
			}
			prev, first = s, false
		}
	}
}
