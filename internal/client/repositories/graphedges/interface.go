package graphedges

import (
	"context"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

type Repository interface {
	Bump(ctx context.Context, fromTagID, toTagID, delta int64, now time.Time) error
	Delete(ctx context.Context, fromTagID, toTagID int64, now time.Time) (bool, error)
	ListFrom(ctx context.Context, fromTagID int64) ([]*models.GraphEdge, error)
	ListTouching(ctx context.Context, tagID int64) ([]*models.GraphEdge, error)

	GetPending(ctx context.Context) ([]*models.GraphEdge, error)
	GetByServerID(ctx context.Context, serverID string) (*models.GraphEdge, error)
	GetByClientID(ctx context.Context, clientID string) (*models.GraphEdge, error)
	Insert(ctx context.Context, g *models.GraphEdge) error
	UpdateDomainFields(ctx context.Context, clientID string, g *models.GraphEdge) error
	UpdateSyncMetadata(ctx context.Context, clientID, serverID string, lastSyncedAt time.Time, pending bool, op models.SyncOperation) error
	MarkPending(ctx context.Context, clientID string, op models.SyncOperation, updatedAt time.Time) error
	Purge(ctx context.Context, clientID string) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
