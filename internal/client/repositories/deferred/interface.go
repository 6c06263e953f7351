package deferred

import (
	"context"
	"time"
)

// Entry is a pulled record that could not be applied yet because it refers
// to a record this device does not have.
type Entry struct {
	Entity   string
	ServerID string
	// Record is the remote snapshot as it arrived, JSON encoded.
	Record []byte
	Reason string
	// Rescanned is set once a full pull was tried for this entry.
	Rescanned  bool
	DeferredAt time.Time
}

type Repository interface {
	Put(ctx context.Context, e *Entry) error
	List(ctx context.Context, entity string) ([]*Entry, error)
	Delete(ctx context.Context, entity, serverID string) error
	MarkRescanned(ctx context.Context) error
	CountUnscanned(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}
