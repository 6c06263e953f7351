package models

// Backup describes one uploaded database snapshot. The file itself lives in
// object storage under StorageKey.
type Backup struct {
	ID         string
	UserID     string
	DeviceID   string
	StorageKey string
	// Hash is the BLAKE2b-256 hex digest reported by the device.
	Hash      string
	SizeBytes int64
	CreatedAt int64
}
