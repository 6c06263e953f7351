// Package models defines server-side data models persisted in the database.
package models

// Record is the server copy of one client entity. Timestamps are epoch
// millis. CreatedAt and UpdatedAt come from the originating device;
// ModifiedAt is the server clock and drives delta pulls.
type Record struct {
	ID         string
	UserID     string
	DeviceID   string
	Entity     string
	ClientID   string
	Payload    []byte
	CreatedAt  int64
	UpdatedAt  int64
	ModifiedAt int64
	// DeletedAt is set once the record is soft-deleted; an update clears it.
	DeletedAt *int64
}

func (r *Record) Deleted() bool { return r.DeletedAt != nil }
