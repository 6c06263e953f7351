package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/cryptox"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/filex"
	"github.com/dmitrijs2005/financehub/internal/logging"
	"github.com/dmitrijs2005/financehub/internal/metrics"
	"github.com/dmitrijs2005/financehub/internal/netx"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

const snapshotName = "financehub-backup.db"

// ErrBackupNotAllowed is returned when connectivity does not allow talking
// to the server.
var ErrBackupNotAllowed = errors.New("backup not allowed on this network")

type BackupEndpoint interface {
	BackupUploadURL(ctx context.Context, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error)
	LatestBackup(ctx context.Context, deviceID string) (*pb.LatestBackupResponse, error)
}

// HashStore remembers the ledger digest of the last uploaded snapshot.
type HashStore interface {
	LastDBHash(ctx context.Context) (string, error)
	SetLastDBHash(ctx context.Context, hash string) error
}

type BackupResult struct {
	Uploaded bool
	Hash     string
	Key      string
	Size     int64
}

// BackupService snapshots the local database and ships it to object storage
// through presigned URLs handed out by the server.
type BackupService struct {
	db       *sql.DB
	remote   BackupEndpoint
	hashes   HashStore
	state    *connectivity.State
	deviceID string
	dir      string
	http     *http.Client
	log      logging.Logger
	metrics  *metrics.SyncMetrics
}

func NewBackupService(db *sql.DB, remote BackupEndpoint, hashes HashStore, state *connectivity.State,
	deviceID, dir string, l logging.Logger, m *metrics.SyncMetrics) *BackupService {
	if m == nil {
		m = metrics.NewSyncMetrics(nil)
	}
	return &BackupService{
		db:       db,
		remote:   remote,
		hashes:   hashes,
		state:    state,
		deviceID: deviceID,
		dir:      dir,
		http:     &http.Client{Timeout: 5 * time.Minute},
		log:      l.With("module", "backup"),
		metrics:  m,
	}
}

// Backup uploads a snapshot when the ledger changed since the last upload.
// Changes are detected on table content rather than file bytes, so
// bookkeeping such as the pull watermark never triggers an upload.
func (s *BackupService) Backup(ctx context.Context) (*BackupResult, error) {
	if s.state != nil && !s.state.CanSync() {
		return nil, ErrBackupNotAllowed
	}

	digest, err := ledgerDigest(ctx, s.db)
	if err != nil {
		return nil, err
	}
	last, err := s.hashes.LastDBHash(ctx)
	if err != nil {
		return nil, err
	}
	if last == digest {
		s.metrics.BackupsSkipped.Inc()
		s.log.Debug(ctx, "ledger unchanged, backup skipped", "digest", digest)
		return &BackupResult{}, nil
	}

	path, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	hash, err := cryptox.ContentHash(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	up, err := s.remote.BackupUploadURL(ctx, s.deviceID, hash, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("request upload url: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, s.http, up.URL, path); err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}
	if err := s.hashes.SetLastDBHash(ctx, digest); err != nil {
		return nil, err
	}

	s.metrics.BackupsUploaded.Inc()
	s.log.Info(ctx, "backup uploaded", "key", up.Key, "size", fi.Size())
	return &BackupResult{Uploaded: true, Hash: hash, Key: up.Key, Size: fi.Size()}, nil
}

// Restore downloads the latest backup of this device to dest and checks the
// file digest. The live database is never replaced in place.
func (s *BackupService) Restore(ctx context.Context, dest string) (*pb.LatestBackupResponse, error) {
	if s.state != nil && !s.state.CanSync() {
		return nil, ErrBackupNotAllowed
	}

	latest, err := s.remote.LatestBackup(ctx, s.deviceID)
	if err != nil {
		return nil, fmt.Errorf("find latest backup: %w", err)
	}
	if latest.URL == "" {
		return nil, fmt.Errorf("backup: %w", common.ErrNotFound)
	}
	if err := netx.DownloadToFile(ctx, s.http, latest.URL, dest); err != nil {
		return nil, fmt.Errorf("download backup: %w", err)
	}

	hash, err := cryptox.ContentHash(dest)
	if err != nil {
		return nil, err
	}
	if latest.Hash != "" && hash != latest.Hash {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("backup %s is corrupt: hash %s, want %s", latest.Key, hash, latest.Hash)
	}
	s.log.Info(ctx, "backup restored", "key", latest.Key, "path", dest)
	return latest, nil
}

// Run backs up every interval until ctx is done. Failures are logged and
// retried on the next tick.
func (s *BackupService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := s.Backup(ctx)
			switch {
			case err == nil, errors.Is(err, ErrBackupNotAllowed):
			case ctx.Err() != nil:
				return nil
			default:
				s.log.Warn(ctx, "backup failed", "error", err)
			}
		}
	}
}

func (s *BackupService) snapshot(ctx context.Context) (string, error) {
	dir, err := filex.EnsureDir(s.dir)
	if err != nil {
		return "", err
	}
	path, err := filex.FreshPath(dir, snapshotName)
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}
	return path, nil
}

// digestOutbox is the part of the sync metadata a backup must protect.
// last_synced_at is left out: it moves on every pass without changing what
// a restore would bring back.
const digestOutbox = "server_id, pending_sync, sync_operation, created_at, updated_at"

// ledgerTables lists what a backup protects, each with a stable order.
var ledgerTables = []struct{ name, columns, order string }{
	{"expenses", "id, title, amount, year, month, date", "id"},
	{"tags", "id, name, monthly_amount, current_month, current_year, created_day, created_month, created_year", "id"},
	{"targets", "month, year, tag_id, amount, spent", "year, month, tag_id"},
	{"expense_tags", "expense_id, tag_id", "expense_id, tag_id"},
	{"graph_edges", "from_tag_id, to_tag_id, weight", "from_tag_id, to_tag_id"},
}

// ledgerDigest hashes every ledger row in a fixed order.
func ledgerDigest(ctx context.Context, db dbx.DBTX) (string, error) {
	d := cryptox.NewDigest()
	for _, t := range ledgerTables {
		rows, err := db.QueryContext(ctx,
			`SELECT `+t.columns+`, `+digestOutbox+` FROM `+t.name+` ORDER BY `+t.order)
		if err != nil {
			return "", fmt.Errorf("digest %s: %w", t.name, err)
		}
		if err := digestRows(d, t.name, rows); err != nil {
			return "", fmt.Errorf("digest %s: %w", t.name, err)
		}
	}
	return d.Hex(), nil
}

func digestRows(w io.Writer, table string, rows *sql.Rows) error {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%v\n", table, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}
