// Package models defines the syncable records kept in the local store and
// the sync metadata every one of them carries.
package models

import (
	"fmt"
	"time"
)

// SyncOperation is the pending outbox action for a record.
type SyncOperation string

const (
	SyncNone   SyncOperation = "NONE"
	SyncCreate SyncOperation = "CREATE"
	SyncUpdate SyncOperation = "UPDATE"
	SyncDelete SyncOperation = "DELETE"
)

func ParseSyncOperation(s string) (SyncOperation, error) {
	switch op := SyncOperation(s); op {
	case SyncNone, SyncCreate, SyncUpdate, SyncDelete:
		return op, nil
	case "":
		return SyncNone, nil
	default:
		return "", fmt.Errorf("unknown sync operation %q", s)
	}
}

// SyncMeta is the outbox bookkeeping attached to every syncable record.
//
// PendingSync is true exactly when SyncOperation is not NONE. ServerID is
// empty until the first acknowledged push and never changes afterwards.
type SyncMeta struct {
	PendingSync   bool
	SyncOperation SyncOperation
	ServerID      string
	LastSyncedAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Arm records a local mutation: the record becomes pending with op, and
// UpdatedAt moves strictly forward. A record whose CREATE was never pushed
// keeps CREATE on later updates.
func (m *SyncMeta) Arm(op SyncOperation, now time.Time) {
	now = now.Truncate(time.Millisecond)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if !now.After(m.UpdatedAt) {
		now = m.UpdatedAt.Add(time.Millisecond)
	}
	m.UpdatedAt = now

	if op == SyncUpdate && m.SyncOperation == SyncCreate {
		op = SyncCreate
	}
	m.PendingSync = true
	m.SyncOperation = op
}

// Pushed reports whether the server has ever acknowledged this record.
func (m *SyncMeta) Pushed() bool { return m.ServerID != "" }

// Syncable is implemented by every record the sync engine moves.
type Syncable interface {
	ClientID() string
	Sync() *SyncMeta
}
