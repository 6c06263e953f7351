package records

import (
	"context"

	"github.com/dmitrijs2005/financehub/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, rec *models.Record) (string, error)
	Update(ctx context.Context, rec *models.Record) (bool, error)
	SoftDelete(ctx context.Context, rec *models.Record) error
	SelectModifiedSince(ctx context.Context, userID string, since int64) ([]*models.Record, error)
}
