package tags

import (
	"context"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Tag, now time.Time) error
	Rename(ctx context.Context, id int64, name string, now time.Time) error
	AddMonthlyAmount(ctx context.Context, id int64, year, month int, delta int64, now time.Time) error
	Delete(ctx context.Context, id int64, now time.Time) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Tag, error)
	GetByName(ctx context.Context, name string) (*models.Tag, error)
	List(ctx context.Context) ([]*models.Tag, error)

	GetPending(ctx context.Context) ([]*models.Tag, error)
	GetByServerID(ctx context.Context, serverID string) (*models.Tag, error)
	GetByClientID(ctx context.Context, clientID string) (*models.Tag, error)
	Insert(ctx context.Context, t *models.Tag) error
	UpdateDomainFields(ctx context.Context, clientID string, t *models.Tag) error
	UpdateSyncMetadata(ctx context.Context, clientID, serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error
	MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error
	Purge(ctx context.Context, clientID string) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
