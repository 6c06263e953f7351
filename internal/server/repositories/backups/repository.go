package backups

import (
	"context"

	"github.com/dmitrijs2005/financehub/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, b *models.Backup) error
	Latest(ctx context.Context, userID, deviceID string) (*models.Backup, error)
}
