package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

type serverRec struct {
	entity   pb.Entity
	rec      pb.Record
	modified int64
}

// fakeRemote is an in-memory server with the same CREATE/UPDATE/DELETE
// rules as the real one.
type fakeRemote struct {
	mu      sync.Mutex
	clock   int64
	nextID  int
	records map[string]*serverRec
	byKey   map[string]string

	healthErr error
	pullErr   error
	// failAfterApply applies the next batch and then reports a transport
	// error, as if the response was lost.
	failAfterApply bool
	reject         map[string]string
	onBatch        func()
	extra          map[pb.Entity][]*pb.Record

	batches   []*pb.BatchSyncRequest
	pullSince []int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		clock:   1_000,
		records: make(map[string]*serverRec),
		byKey:   make(map[string]string),
		reject:  make(map[string]string),
		extra:   make(map[pb.Entity][]*pb.Record),
	}
}

func (f *fakeRemote) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeRemote) tick() int64 {
	f.clock++
	return f.clock
}

func (f *fakeRemote) upsert(entity pb.Entity, deviceID, clientID string, payload json.RawMessage, createdAt, updatedAt int64) string {
	key := deviceID + "|" + string(entity) + "|" + clientID
	if id, ok := f.byKey[key]; ok {
		r := f.records[id]
		r.rec.Payload = payload
		r.rec.UpdatedAt = updatedAt
		r.rec.Deleted = false
		r.modified = f.tick()
		return id
	}
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.byKey[key] = id
	f.records[id] = &serverRec{
		entity: entity,
		rec: pb.Record{ID: id, DeviceID: deviceID, ClientID: clientID, Payload: payload,
			CreatedAt: createdAt, UpdatedAt: updatedAt},
		modified: f.tick(),
	}
	return id
}

func (f *fakeRemote) BatchSync(_ context.Context, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, req)
	resp := &pb.BatchSyncResponse{}
	for _, op := range req.Operations {
		res := &pb.OperationResult{ClientID: op.ClientID}
		if reason, ok := f.reject[op.ClientID]; ok {
			res.Error = reason
			resp.Results = append(resp.Results, res)
			continue
		}
		switch op.Op {
		case pb.OpCreate:
			res.ServerID = f.upsert(req.Entity, req.DeviceID, op.ClientID, op.Payload, op.CreatedAt, op.UpdatedAt)
			res.Success = true
		case pb.OpUpdate:
			r, ok := f.records[op.ServerID]
			if !ok {
				res.Error = "record not found"
				break
			}
			r.rec.Payload = op.Payload
			r.rec.UpdatedAt = op.UpdatedAt
			r.rec.Deleted = false
			r.modified = f.tick()
			res.ServerID = op.ServerID
			res.Success = true
		case pb.OpDelete:
			if r, ok := f.records[op.ServerID]; ok && !r.rec.Deleted {
				r.rec.Deleted = true
				r.rec.UpdatedAt = op.UpdatedAt
				r.modified = f.tick()
			}
			res.ServerID = op.ServerID
			res.Success = true
		}
		resp.Results = append(resp.Results, res)
	}
	fail := f.failAfterApply
	f.failAfterApply = false
	hook := f.onBatch
	f.onBatch = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return nil, fmt.Errorf("%w: connection reset", client.ErrUnavailable)
	}
	return resp, nil
}

func (f *fakeRemote) PullDelta(_ context.Context, since int64) (*pb.PullDeltaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullSince = append(f.pullSince, since)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	resp := &pb.PullDeltaResponse{ServerTime: f.clock}
	for _, e := range pb.Entities {
		for _, r := range f.sorted(e) {
			if r.modified > since {
				rec := r.rec
				resp.Append(e, &rec)
			}
		}
		for _, rec := range f.extra[e] {
			resp.Append(e, rec)
		}
	}
	return resp, nil
}

func (f *fakeRemote) sorted(e pb.Entity) []*serverRec {
	var out []*serverRec
	for i := 1; i <= f.nextID; i++ {
		if r, ok := f.records[fmt.Sprintf("srv-%d", i)]; ok && r.entity == e {
			out = append(out, r)
		}
	}
	return out
}

// put stores a record as if another device had pushed it.
func (f *fakeRemote) put(entity pb.Entity, deviceID, clientID string, payload any, updatedAt int64) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsert(entity, deviceID, clientID, raw, updatedAt, updatedAt)
}

// edit overwrites a record's payload as if another device had updated it.
func (f *fakeRemote) edit(id, deviceID string, payload any, updatedAt int64) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.rec.Payload = raw
	r.rec.DeviceID = deviceID
	r.rec.UpdatedAt = updatedAt
	r.modified = f.tick()
}

func (f *fakeRemote) remove(id string, updatedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.rec.Deleted = true
	r.rec.UpdatedAt = updatedAt
	r.modified = f.tick()
}

func (f *fakeRemote) live(e pb.Entity) []pb.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pb.Record
	for _, r := range f.sorted(e) {
		if !r.rec.Deleted {
			out = append(out, r.rec)
		}
	}
	return out
}

func (f *fakeRemote) batchesFor(e pb.Entity) []*pb.BatchSyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pb.BatchSyncRequest
	for _, b := range f.batches {
		if b.Entity == e {
			out = append(out, b)
		}
	}
	return out
}
