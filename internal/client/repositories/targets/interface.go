package targets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

type Repository interface {
	Set(ctx context.Context, t *models.Target, now time.Time) error
	AddSpent(ctx context.Context, month, year int, tagID, delta int64, now time.Time) error
	Delete(ctx context.Context, month, year int, tagID int64, now time.Time) (bool, error)
	Get(ctx context.Context, month, year int, tagID int64) (*models.Target, error)
	List(ctx context.Context, year, month int) ([]*models.Target, error)
	ListByTag(ctx context.Context, tagID int64) ([]*models.Target, error)

	GetPending(ctx context.Context) ([]*models.Target, error)
	GetByServerID(ctx context.Context, serverID string) (*models.Target, error)
	GetByClientID(ctx context.Context, clientID string) (*models.Target, error)
	Insert(ctx context.Context, t *models.Target) error
	UpdateDomainFields(ctx context.Context, clientID string, t *models.Target) error
	UpdateSyncMetadata(ctx context.Context, clientID, serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error
	MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error
	Purge(ctx context.Context, clientID string) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
