// Package proto defines the SyncService wire contract: message types,
// the JSON codec they travel in, and the gRPC service descriptor with its
// client stub and server registration.
package proto

import "encoding/json"

// Op is the operation carried by one batch item.
type Op string

const (
	OpCreate Op = "CREATE"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Entity names the collection a batch or a pulled record belongs to.
type Entity string

const (
	EntityExpense    Entity = "expense"
	EntityTag        Entity = "tag"
	EntityTarget     Entity = "target"
	EntityExpenseTag Entity = "expense_tag"
	EntityGraphEdge  Entity = "graph_edge"
)

// Entities lists every entity in push order: referents before the links
// that point at them.
var Entities = []Entity{EntityExpense, EntityTag, EntityTarget, EntityExpenseTag, EntityGraphEdge}

func (e Entity) Valid() bool {
	for _, v := range Entities {
		if v == e {
			return true
		}
	}
	return false
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// Operation is one outbox item. Timestamps are epoch millis.
type Operation struct {
	Op        Op              `json:"op"`
	ClientID  string          `json:"client_id"`
	ServerID  string          `json:"server_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

type BatchSyncRequest struct {
	DeviceID   string       `json:"device_id"`
	Entity     Entity       `json:"entity"`
	Operations []*Operation `json:"operations"`
}

type OperationResult struct {
	Success  bool   `json:"success"`
	ClientID string `json:"client_id"`
	ServerID string `json:"server_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type BatchSyncResponse struct {
	Results []*OperationResult `json:"results"`
}

type PullDeltaRequest struct {
	Since int64 `json:"since"`
}

// Record is a remote snapshot of one entity. Soft-deleted records are part
// of the delta so other devices can drop their copy.
type Record struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	ClientID  string          `json:"client_id"`
	Payload   json.RawMessage `json:"payload"`
	Deleted   bool            `json:"deleted,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

type PullDeltaResponse struct {
	ServerTime  int64     `json:"server_time"`
	Expenses    []*Record `json:"expenses"`
	Tags        []*Record `json:"tags"`
	Targets     []*Record `json:"targets"`
	ExpenseTags []*Record `json:"expense_tags"`
	GraphEdges  []*Record `json:"graph_edges"`
}

// Records returns the collection for entity e.
func (r *PullDeltaResponse) Records(e Entity) []*Record {
	switch e {
	case EntityExpense:
		return r.Expenses
	case EntityTag:
		return r.Tags
	case EntityTarget:
		return r.Targets
	case EntityExpenseTag:
		return r.ExpenseTags
	case EntityGraphEdge:
		return r.GraphEdges
	}
	return nil
}

// Append adds rec to the collection for entity e.
func (r *PullDeltaResponse) Append(e Entity, rec *Record) {
	switch e {
	case EntityExpense:
		r.Expenses = append(r.Expenses, rec)
	case EntityTag:
		r.Tags = append(r.Tags, rec)
	case EntityTarget:
		r.Targets = append(r.Targets, rec)
	case EntityExpenseTag:
		r.ExpenseTags = append(r.ExpenseTags, rec)
	case EntityGraphEdge:
		r.GraphEdges = append(r.GraphEdges, rec)
	}
}

type BackupUploadURLRequest struct {
	DeviceID  string `json:"device_id"`
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
}

type BackupUploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type LatestBackupRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

type LatestBackupResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
}
