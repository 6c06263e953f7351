package expensetags

import (
	"context"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

type Repository interface {
	Link(ctx context.Context, expenseID, tagID int64, now time.Time) error
	Unlink(ctx context.Context, expenseID, tagID int64, now time.Time) (bool, error)
	ListByExpense(ctx context.Context, expenseID int64) ([]*models.ExpenseTag, error)
	ListByTag(ctx context.Context, tagID int64) ([]*models.ExpenseTag, error)

	GetPending(ctx context.Context) ([]*models.ExpenseTag, error)
	GetByServerID(ctx context.Context, serverID string) (*models.ExpenseTag, error)
	GetByClientID(ctx context.Context, clientID string) (*models.ExpenseTag, error)
	Insert(ctx context.Context, l *models.ExpenseTag) error
	UpdateDomainFields(ctx context.Context, clientID string, l *models.ExpenseTag) error
	UpdateSyncMetadata(ctx context.Context, clientID, serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error
	MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error
	Purge(ctx context.Context, clientID string) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
