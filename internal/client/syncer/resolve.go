package syncer

import (
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
)

// Verdict is what to do with one incoming remote snapshot.
type Verdict int

const (
	// VerdictInsert: no local copy exists; store the remote one as synced.
	VerdictInsert Verdict = iota
	// VerdictKeepLocal: the local copy has unpushed changes and wins.
	VerdictKeepLocal
	// VerdictOverwrite: the remote copy is newer than the clean local one.
	VerdictOverwrite
	// VerdictTouch: the remote copy is not newer; only bookkeeping changes.
	VerdictTouch
)

func (v Verdict) String() string {
	switch v {
	case VerdictInsert:
		return "insert"
	case VerdictKeepLocal:
		return "keep_local"
	case VerdictOverwrite:
		return "overwrite"
	case VerdictTouch:
		return "touch"
	}
	return "unknown"
}

// Resolve arbitrates between the local record (nil when absent) and a remote
// snapshot last updated at remoteUpdatedAt. Local pending changes beat
// everything; among clean records the strictly newer timestamp wins and
// ties are a no-op.
func Resolve(local *models.SyncMeta, remoteUpdatedAt time.Time) Verdict {
	switch {
	case local == nil:
		return VerdictInsert
	case local.PendingSync:
		return VerdictKeepLocal
	case remoteUpdatedAt.After(local.UpdatedAt):
		return VerdictOverwrite
	default:
		return VerdictTouch
	}
}
