package metadata

import (
	"context"
)

// Repository is the local key/value area for agent state such as the sync
// watermark and the last backup hash.
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}
