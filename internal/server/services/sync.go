// Package services holds the server use cases behind the gRPC handlers:
// applying pushed batches, serving deltas and presigning backup transfers.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/logging"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"github.com/dmitrijs2005/financehub/internal/server/models"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/records"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DeltaLag is subtracted from the server clock when reporting server_time,
// so writes still committing while a delta is read are picked up by the
// next pull. Records may arrive twice; clients apply them idempotently.
const DeltaLag = time.Second

// ErrStorage wraps database failures so handlers can report them as
// temporary.
var ErrStorage = errors.New("storage error")

type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewSyncService(db *sql.DB, rm repomanager.RepositoryManager, l logging.Logger) *SyncService {
	return &SyncService{db: db, repomanager: rm, log: l.With("module", "sync_service"), now: time.Now}
}

// ApplyBatch applies every operation on its own. Rejected items are
// reported in their result and do not affect the rest of the batch; a
// storage failure aborts the batch so the device retries it whole.
func (s *SyncService) ApplyBatch(ctx context.Context, userID string, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", common.ErrValidation)
	}
	if !req.Entity.Valid() {
		return nil, fmt.Errorf("%w: unknown entity %q", common.ErrValidation, req.Entity)
	}

	repo := s.repomanager.Records(s.db)
	resp := &pb.BatchSyncResponse{Results: make([]*pb.OperationResult, 0, len(req.Operations))}

	for _, op := range req.Operations {
		serverID, err := s.apply(ctx, repo, userID, req, op)
		if errors.Is(err, ErrStorage) {
			return nil, err
		}
		res := &pb.OperationResult{Success: err == nil, ClientID: op.ClientID, ServerID: serverID}
		if err != nil {
			res.Error = err.Error()
			s.log.Debug(ctx, "operation rejected", "entity", req.Entity, "client_id", op.ClientID, "error", err)
		}
		resp.Results = append(resp.Results, res)
	}

	s.log.Info(ctx, "batch applied", "user", userID, "device", req.DeviceID, "entity", req.Entity, "count", len(req.Operations))
	return resp, nil
}

func (s *SyncService) apply(ctx context.Context, repo records.Repository, userID string,
	req *pb.BatchSyncRequest, op *pb.Operation) (string, error) {
	if op.ClientID == "" {
		return "", errors.New("client id is required")
	}

	rec := &models.Record{
		ID:         op.ServerID,
		UserID:     userID,
		DeviceID:   req.DeviceID,
		Entity:     string(req.Entity),
		ClientID:   op.ClientID,
		Payload:    op.Payload,
		CreatedAt:  op.CreatedAt,
		UpdatedAt:  op.UpdatedAt,
		ModifiedAt: s.now().UnixMilli(),
	}

	switch op.Op {
	case pb.OpCreate:
		if err := validPayload(op.Payload); err != nil {
			return "", err
		}
		rec.ID = uuid.NewString()
		id, err := repo.Upsert(ctx, rec)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return id, nil

	case pb.OpUpdate:
		if req.Entity == pb.EntityExpenseTag {
			return op.ServerID, errors.New("expense tag links support create and delete only")
		}
		if _, err := uuid.Parse(op.ServerID); err != nil {
			return "", errors.New("record not found")
		}
		if err := validPayload(op.Payload); err != nil {
			return op.ServerID, err
		}
		_, err := repo.Update(ctx, rec)
		if errors.Is(err, common.ErrNotFound) {
			return op.ServerID, errors.New("record not found")
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return op.ServerID, nil

	case pb.OpDelete:
		if _, err := uuid.Parse(op.ServerID); err != nil {
			// Never stored here, so there is nothing to delete.
			return op.ServerID, nil
		}
		if err := repo.SoftDelete(ctx, rec); err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return op.ServerID, nil
	}

	return op.ServerID, fmt.Errorf("unsupported operation %q", op.Op)
}

func validPayload(p json.RawMessage) error {
	var obj map[string]json.RawMessage
	if len(p) == 0 || json.Unmarshal(p, &obj) != nil {
		return errors.New("payload must be a JSON object")
	}
	return nil
}

// PullDelta returns every record of the user modified after since,
// soft-deleted ones flagged, grouped by entity.
func (s *SyncService) PullDelta(ctx context.Context, userID string, since int64) (*pb.PullDeltaResponse, error) {
	serverTime := s.now().Add(-DeltaLag).UnixMilli()

	recs, err := s.repomanager.Records(s.db).SelectModifiedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	resp := &pb.PullDeltaResponse{ServerTime: max(serverTime, since)}
	for _, r := range recs {
		e := pb.Entity(r.Entity)
		if !e.Valid() {
			continue
		}
		resp.Append(e, &pb.Record{
			ID:        r.ID,
			DeviceID:  r.DeviceID,
			ClientID:  r.ClientID,
			Payload:   r.Payload,
			Deleted:   r.Deleted(),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}

	s.log.Debug(ctx, "delta served", "user", userID, "since", since, "records", len(recs))
	return resp, nil
}
