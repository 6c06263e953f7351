package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/common"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

// store is the part of an entity repository the engine drives. Every
// entity repository satisfies it for its own record type.
type store[T models.Syncable] interface {
	GetPending(ctx context.Context) ([]T, error)
	GetByServerID(ctx context.Context, serverID string) (T, error)
	GetByClientID(ctx context.Context, clientID string) (T, error)
	Insert(ctx context.Context, v T) error
	UpdateDomainFields(ctx context.Context, clientID string, v T) error
	Acknowledge(ctx context.Context, clientID, serverID string, pushedAt, now time.Time) error
	PurgeVersion(ctx context.Context, clientID string, updatedAt time.Time) error
	Touch(ctx context.Context, clientID, serverID string, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// entitySyncer is one entity's push, pull and retention, with the record
// type erased so the engine can loop over all five.
type entitySyncer interface {
	Entity() pb.Entity
	push(ctx context.Context, e *Engine, sum *Summary) error
	// apply merges one pulled record. It returns an error wrapping
	// errUnresolved when the record has to wait for a referenced record.
	apply(ctx context.Context, e *Engine, rec *pb.Record, sum *Summary) error
	retain(ctx context.Context, cutoff time.Time) (int64, error)
	pending(ctx context.Context) (int64, error)
}

var (
	// errUnresolved marks a pulled record whose references point at
	// records this device does not know.
	errUnresolved = errors.New("unresolved reference")
	// errAwaitingReference marks a local record that refers to a record the
	// server has not acknowledged yet.
	errAwaitingReference = errors.New("referenced record not pushed yet")
	// errDuplicate marks a remote record whose unique key is already held
	// by a local record bound to another server id.
	errDuplicate = errors.New("duplicate of a local record")
)

// entitySync applies the same outbox and conflict rules to every entity;
// only the payload mapping differs.
type entitySync[T models.Syncable] struct {
	entity pb.Entity
	store  store[T]
	// updatable is false for records that are only ever created or deleted.
	updatable bool
	// encode builds the wire payload for a local record.
	encode func(ctx context.Context, v T) (any, error)
	// decode builds a detached record from a remote snapshot. own is true
	// when the snapshot originated on this device.
	decode func(ctx context.Context, rec *pb.Record, own bool) (T, error)
	// claim finds a local record with the same unique key as a record from
	// another device. Nil for entities without such a key.
	claim func(ctx context.Context, incoming T) (T, bool, error)
	// aliases maps the server ids of remote duplicates to the local record
	// that absorbed them. Used only with claim.
	aliases aliases
}

func (a *entitySync[T]) Entity() pb.Entity { return a.entity }

func (a *entitySync[T]) operation(m *models.SyncMeta) (pb.Op, bool) {
	switch m.SyncOperation {
	case models.SyncCreate:
		// Re-sent after a lost or partial acknowledgement.
		if m.Pushed() && a.updatable {
			return pb.OpUpdate, true
		}
		return pb.OpCreate, true
	case models.SyncUpdate:
		if !a.updatable {
			return "", false
		}
		if !m.Pushed() {
			return pb.OpCreate, true
		}
		return pb.OpUpdate, true
	case models.SyncDelete:
		return pb.OpDelete, true
	}
	return "", false
}

func (a *entitySync[T]) push(ctx context.Context, e *Engine, sum *Summary) error {
	items, err := a.store.GetPending(ctx)
	if err != nil {
		return localErr(PhasePush, err)
	}
	if len(items) == 0 {
		return nil
	}

	ops := make([]*pb.Operation, 0, len(items))
	sent := make(map[string]T, len(items))
	for _, item := range items {
		m := item.Sync()
		id := item.ClientID()

		op, ok := a.operation(m)
		if !ok {
			reason := fmt.Sprintf("%s is not supported for %s", m.SyncOperation, a.entity)
			e.reject(ctx, sum, a.entity, id, reason)
			if err := a.store.Acknowledge(ctx, id, "", m.UpdatedAt, e.now()); err != nil && !errors.Is(err, common.ErrNotFound) {
				return localErr(PhasePush, err)
			}
			continue
		}

		if op == pb.OpDelete && !m.Pushed() {
			// The server never saw it.
			if err := a.store.PurgeVersion(ctx, id, m.UpdatedAt); err != nil {
				return localErr(PhasePush, err)
			}
			continue
		}

		o := &pb.Operation{
			Op:        op,
			ClientID:  id,
			ServerID:  m.ServerID,
			CreatedAt: timex.ToMillis(m.CreatedAt),
			UpdatedAt: timex.ToMillis(m.UpdatedAt),
		}
		if op != pb.OpDelete {
			payload, err := a.encode(ctx, item)
			if errors.Is(err, errAwaitingReference) {
				// Stays pending until the referenced record is acknowledged.
				e.reject(ctx, sum, a.entity, id, err.Error())
				continue
			}
			if err != nil {
				return localErr(PhasePush, fmt.Errorf("%s[%s]: encode: %w", a.entity, id, err))
			}
			if o.Payload, err = json.Marshal(payload); err != nil {
				return localErr(PhasePush, fmt.Errorf("%s[%s]: marshal: %w", a.entity, id, err))
			}
		}
		ops = append(ops, o)
		sent[id] = item
	}

	size := e.cfg.BatchSize
	for start := 0; start < len(ops); start += size {
		batch := ops[start:min(start+size, len(ops))]
		resp, err := e.remote.BatchSync(ctx, &pb.BatchSyncRequest{
			DeviceID:   e.cfg.DeviceID,
			Entity:     a.entity,
			Operations: batch,
		})
		if err != nil {
			return remoteErr(PhasePush, err)
		}
		e.log.Debug(ctx, "batch pushed", "entity", a.entity, "size", len(batch))
		if err := a.acknowledge(ctx, e, batch, resp, sent, sum); err != nil {
			return err
		}
	}
	return nil
}

// acknowledge applies per-item results. A rejected item stays pending and
// never fails the batch.
func (a *entitySync[T]) acknowledge(ctx context.Context, e *Engine, batch []*pb.Operation,
	resp *pb.BatchSyncResponse, sent map[string]T, sum *Summary) error {
	seen := make(map[string]bool, len(batch))
	var orphans []*pb.Operation

	for _, r := range resp.Results {
		if r == nil {
			continue
		}
		item, ok := sent[r.ClientID]
		if !ok || seen[r.ClientID] {
			e.log.Warn(ctx, "unexpected batch result", "entity", a.entity, "client_id", r.ClientID)
			continue
		}
		seen[r.ClientID] = true

		if !r.Success {
			e.reject(ctx, sum, a.entity, r.ClientID, r.Error)
			continue
		}

		m := item.Sync()
		var err error
		if m.SyncOperation == models.SyncDelete {
			err = a.store.PurgeVersion(ctx, r.ClientID, m.UpdatedAt)
		} else {
			err = a.store.Acknowledge(ctx, r.ClientID, r.ServerID, m.UpdatedAt, e.now())
		}
		switch {
		case errors.Is(err, common.ErrNotFound):
			// Deleted locally while its CREATE was in flight.
			if r.ServerID != "" && !m.Pushed() {
				orphans = append(orphans, &pb.Operation{
					Op:        pb.OpDelete,
					ClientID:  r.ClientID,
					ServerID:  r.ServerID,
					UpdatedAt: timex.ToMillis(e.now()),
				})
			}
		case err != nil:
			return localErr(PhasePush, err)
		}

		sum.Pushed++
		e.metrics.ItemsPushed.WithLabelValues(string(a.entity)).Inc()
	}

	for _, o := range batch {
		if !seen[o.ClientID] {
			e.reject(ctx, sum, a.entity, o.ClientID, "no result returned")
		}
	}

	if len(orphans) > 0 {
		// Best effort; an orphan left behind is harmless to this device.
		_, err := e.remote.BatchSync(ctx, &pb.BatchSyncRequest{DeviceID: e.cfg.DeviceID, Entity: a.entity, Operations: orphans})
		if err != nil {
			e.log.Warn(ctx, "failed to delete orphaned records", "entity", a.entity, "count", len(orphans), "error", err)
		}
	}
	return nil
}

// match finds the local copy of rec: by server id, then by local key for
// records this device pushed but never saw acknowledged, or composite keys
// another device also created, and finally by unique key through claim.
func (a *entitySync[T]) match(ctx context.Context, rec *pb.Record, incoming T, own bool) (T, bool, error) {
	var zero T

	local, err := a.store.GetByServerID(ctx, rec.ID)
	if err == nil {
		return local, true, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return zero, false, storeErr(err)
	}

	key := incoming.ClientID()
	if own {
		key = rec.ClientID
	}
	local, err = a.store.GetByClientID(ctx, key)
	if err == nil {
		return local, true, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return zero, false, storeErr(err)
	}

	// A deleted duplicate has nothing to merge.
	if own || rec.Deleted || a.claim == nil {
		return zero, false, nil
	}
	local, ok, err := a.claim(ctx, incoming)
	if err != nil {
		return zero, false, storeErr(err)
	}
	if !ok {
		return zero, false, nil
	}
	if m := local.Sync(); m.Pushed() && m.ServerID != rec.ID {
		return local, false, errDuplicate
	}
	// Never pushed: the remote record becomes its server copy.
	return local, true, nil
}

func (a *entitySync[T]) apply(ctx context.Context, e *Engine, rec *pb.Record, sum *Summary) error {
	if rec == nil || rec.ID == "" {
		return pullErr(fmt.Errorf("%s record without server id", a.entity))
	}
	own := e.cfg.DeviceID != "" && rec.DeviceID == e.cfg.DeviceID

	incoming, err := a.decode(ctx, rec, own)
	if errors.Is(err, errUnresolved) {
		if rec.Deleted {
			return a.tombstone(ctx, e, rec, sum)
		}
		return fmt.Errorf("%s[%s]: %w", a.entity, rec.ID, err)
	}
	if err != nil {
		return pullErr(fmt.Errorf("%s[%s]: %w", a.entity, rec.ID, err))
	}

	remoteUpdated := timex.FromMillis(rec.UpdatedAt)
	*incoming.Sync() = models.SyncMeta{
		ServerID:      rec.ID,
		SyncOperation: models.SyncNone,
		CreatedAt:     timex.FromMillis(rec.CreatedAt),
		UpdatedAt:     remoteUpdated,
	}

	local, found, err := a.match(ctx, rec, incoming, own)
	if errors.Is(err, errDuplicate) {
		return a.absorb(ctx, e, rec, local, sum)
	}
	if err != nil {
		return err
	}
	var localMeta *models.SyncMeta
	if found {
		localMeta = local.Sync()
	}

	now := e.now()
	verdict := Resolve(localMeta, remoteUpdated)
	e.log.Debug(ctx, "resolved remote record", "entity", a.entity, "server_id", rec.ID, "verdict", verdict.String())

	switch verdict {
	case VerdictInsert:
		if rec.Deleted {
			return a.dropAlias(ctx, rec.ID)
		}
		incoming.Sync().LastSyncedAt = now
		err := a.store.Insert(ctx, incoming)
		if errors.Is(err, common.ErrConflict) && a.claim != nil {
			holder, ok, cerr := a.claim(ctx, incoming)
			if cerr != nil {
				return storeErr(cerr)
			}
			if ok {
				return a.absorb(ctx, e, rec, holder, sum)
			}
		}
		if err != nil {
			return storeErr(err)
		}
		if err := a.dropAlias(ctx, rec.ID); err != nil {
			return err
		}
		sum.Pulled++
		e.metrics.ItemsPulled.WithLabelValues(string(a.entity)).Inc()
		return nil

	case VerdictKeepLocal:
		sum.Kept++
		return a.touch(ctx, local.ClientID(), rec.ID, now)

	case VerdictOverwrite:
		key := local.ClientID()
		if rec.Deleted {
			if err := a.store.PurgeVersion(ctx, key, localMeta.UpdatedAt); err != nil {
				return storeErr(err)
			}
		} else {
			err := a.store.UpdateDomainFields(ctx, key, incoming)
			switch {
			case errors.Is(err, common.ErrNotFound):
				// Became pending after it was read; local wins.
				sum.Kept++
				return nil
			case errors.Is(err, common.ErrConflict):
				// Another local record holds the new unique value.
				e.log.Warn(ctx, "remote change conflicts with a local record, keeping local",
					"entity", a.entity, "server_id", rec.ID, "error", err)
				sum.Kept++
				return a.touch(ctx, key, rec.ID, now)
			case err != nil:
				return storeErr(err)
			}
			if err := a.touch(ctx, key, rec.ID, now); err != nil {
				return err
			}
		}
		sum.Pulled++
		e.metrics.ItemsPulled.WithLabelValues(string(a.entity)).Inc()
		return nil

	default:
		return a.touch(ctx, local.ClientID(), rec.ID, now)
	}
}

// tombstone applies a remote deletion whose references no longer resolve.
// Only a local copy already bound to the same server id can exist.
func (a *entitySync[T]) tombstone(ctx context.Context, e *Engine, rec *pb.Record, sum *Summary) error {
	if err := a.dropAlias(ctx, rec.ID); err != nil {
		return err
	}
	local, err := a.store.GetByServerID(ctx, rec.ID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}

	m := local.Sync()
	switch Resolve(m, timex.FromMillis(rec.UpdatedAt)) {
	case VerdictOverwrite:
		if err := a.store.PurgeVersion(ctx, local.ClientID(), m.UpdatedAt); err != nil {
			return storeErr(err)
		}
		sum.Pulled++
		e.metrics.ItemsPulled.WithLabelValues(string(a.entity)).Inc()
		return nil
	case VerdictKeepLocal:
		sum.Kept++
	}
	return a.touch(ctx, local.ClientID(), rec.ID, e.now())
}

// absorb records rec as a remote duplicate of holder. Later references to
// rec resolve to holder; holder itself is left unchanged.
func (a *entitySync[T]) absorb(ctx context.Context, e *Engine, rec *pb.Record, holder T, sum *Summary) error {
	if rec.Deleted {
		return a.dropAlias(ctx, rec.ID)
	}
	if err := a.aliases.set(ctx, a.entity, rec.ID, holder.ClientID()); err != nil {
		return storeErr(err)
	}
	sum.Kept++
	e.log.Info(ctx, "remote duplicate merged into local record",
		"entity", a.entity, "server_id", rec.ID, "client_id", holder.ClientID())
	return nil
}

func (a *entitySync[T]) dropAlias(ctx context.Context, serverID string) error {
	if a.claim == nil {
		return nil
	}
	if err := a.aliases.drop(ctx, a.entity, serverID); err != nil {
		return storeErr(err)
	}
	return nil
}

func (a *entitySync[T]) touch(ctx context.Context, key, serverID string, now time.Time) error {
	err := a.store.Touch(ctx, key, serverID, now)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return storeErr(err)
	}
	return nil
}

func (a *entitySync[T]) retain(ctx context.Context, cutoff time.Time) (int64, error) {
	return a.store.DeleteOlderThan(ctx, cutoff)
}

func (a *entitySync[T]) pending(ctx context.Context) (int64, error) {
	return a.store.CountPending(ctx)
}
