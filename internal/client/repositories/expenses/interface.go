package expenses

import (
	"context"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

// Repository is the local store of expenses.
type Repository interface {
	Create(ctx context.Context, e *models.Expense, now time.Time) error
	Update(ctx context.Context, e *models.Expense, now time.Time) error
	Delete(ctx context.Context, id int64, now time.Time) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Expense, error)
	List(ctx context.Context, year, month int) ([]*models.Expense, error)

	GetPending(ctx context.Context) ([]*models.Expense, error)
	GetByServerID(ctx context.Context, serverID string) (*models.Expense, error)
	GetByClientID(ctx context.Context, clientID string) (*models.Expense, error)
	Insert(ctx context.Context, e *models.Expense) error
	UpdateDomainFields(ctx context.Context, clientID string, e *models.Expense) error
	UpdateSyncMetadata(ctx context.Context, clientID, serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error
	MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error
	Purge(ctx context.Context, clientID string) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
