package connectivity

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/client/repositories/metadata"
	"github.com/google/uuid"
)

const (
	KeyLastSyncTimestamp = "last_sync_timestamp"
	KeyLastDBHash        = "last_db_hash"
	KeyDeviceID          = "device_id"
)

// WatermarkStore keeps the agent's durable sync state in the metadata table.
type WatermarkStore struct {
	repo metadata.Repository
}

func NewWatermarkStore(repo metadata.Repository) *WatermarkStore {
	return &WatermarkStore{repo: repo}
}

// LastSync returns the pull cursor in epoch millis; 0 before the first pull.
func (w *WatermarkStore) LastSync(ctx context.Context) (int64, error) {
	return w.repo.GetInt64(ctx, KeyLastSyncTimestamp)
}

// Advance moves the cursor to ms. The cursor never moves backwards.
func (w *WatermarkStore) Advance(ctx context.Context, ms int64) error {
	cur, err := w.LastSync(ctx)
	if err != nil {
		return err
	}
	if ms <= cur {
		return nil
	}
	return w.repo.SetInt64(ctx, KeyLastSyncTimestamp, ms)
}

func (w *WatermarkStore) LastDBHash(ctx context.Context) (string, error) {
	v, _, err := w.repo.Get(ctx, KeyLastDBHash)
	return v, err
}

func (w *WatermarkStore) SetLastDBHash(ctx context.Context, hash string) error {
	return w.repo.Set(ctx, KeyLastDBHash, hash)
}

// DeviceID returns this installation's id, generating it on first use.
func (w *WatermarkStore) DeviceID(ctx context.Context) (string, error) {
	v, ok, err := w.repo.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}
	id := uuid.NewString()
	if err := w.repo.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}
