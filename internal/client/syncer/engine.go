// Package syncer runs one synchronization pass between the local store and
// the server: push the outbox, pull the remote delta, then drop old synced
// records.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/deferred"
	"github.com/dmitrijs2005/financehub/internal/logging"
	"github.com/dmitrijs2005/financehub/internal/metrics"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

const (
	DefaultBatchSize = 50
	DefaultRetention = 90 * 24 * time.Hour
)

// Remote is the subset of the server API a pass needs.
type Remote interface {
	HealthCheck(ctx context.Context) error
	BatchSync(ctx context.Context, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error)
	PullDelta(ctx context.Context, since int64) (*pb.PullDeltaResponse, error)
}

// Watermark persists the pull cursor.
type Watermark interface {
	LastSync(ctx context.Context) (int64, error)
	Advance(ctx context.Context, ms int64) error
}

type Config struct {
	// DeviceID tags pushed batches and recognises this device's own records
	// in the delta.
	DeviceID  string
	BatchSize int
	Retention time.Duration
}

// Rejection is an outbox item the pass could not deliver. It stays pending
// unless the operation itself is unsupported.
type Rejection struct {
	Entity   pb.Entity
	ClientID string
	Reason   string
}

// Summary is the successful result of a pass.
type Summary struct {
	Pushed    int
	Rejected  []Rejection
	Pulled    int
	Kept      int
	// Deferred counts pulled records still waiting for a referenced record
	// after the pass.
	Deferred  int
	Purged    int64
	Watermark int64
	Duration  time.Duration
}

type Option func(*Engine)

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = l.With("module", "syncer") }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	remote    Remote
	watermark Watermark
	deferred  deferred.Repository
	state     *connectivity.State
	entities  []entitySyncer
	cfg       Config
	log       logging.Logger
	metrics   *metrics.SyncMetrics
	now       func() time.Time
}

func NewEngine(remote Remote, repos *client.Repositories, wm Watermark, state *connectivity.State, cfg Config, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	e := &Engine{
		remote:    remote,
		watermark: wm,
		deferred:  repos.Deferred,
		state:     state,
		entities:  newEntitySyncers(repos),
		cfg:       cfg,
		log:       logging.Nop(),
		metrics:   metrics.NewSyncMetrics(nil),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PerformFullSync runs push, pull and retention in that order. The caller
// is expected to have checked State.CanSync; connectivity is re-checked
// before each network phase. Work committed before a failure is kept.
func (e *Engine) PerformFullSync(ctx context.Context) (*Summary, error) {
	start := e.now()
	e.state.UpdateSyncPhase(connectivity.PhaseSyncing)
	e.log.Info(ctx, "sync pass started")

	sum := &Summary{}
	err := e.run(ctx, sum)
	sum.Duration = e.now().Sub(start)

	e.metrics.ObservePass(sum.Duration, err)
	e.state.FinishPass(e.now(), err)
	e.refreshPending(ctx)

	if err != nil {
		e.log.Error(ctx, "sync pass failed", "error", err, "retryable", IsRetryable(err))
		return sum, err
	}
	e.log.Info(ctx, "sync pass finished",
		"pushed", sum.Pushed, "rejected", len(sum.Rejected), "pulled", sum.Pulled,
		"kept", sum.Kept, "deferred", sum.Deferred, "purged", sum.Purged,
		"watermark", sum.Watermark, "duration", sum.Duration)
	return sum, nil
}

func (e *Engine) run(ctx context.Context, sum *Summary) error {
	if err := e.ensureReachable(ctx, PhasePush); err != nil {
		return err
	}
	for _, s := range e.entities {
		if err := s.push(ctx, e, sum); err != nil {
			return err
		}
	}

	if err := e.ensureReachable(ctx, PhasePull); err != nil {
		return err
	}
	if err := e.pull(ctx, sum); err != nil {
		return err
	}

	return e.retain(ctx, sum)
}

// ensureReachable re-checks the trusted-network policy and the server
// before a network phase.
func (e *Engine) ensureReachable(ctx context.Context, phase Phase) error {
	if err := ctx.Err(); err != nil {
		return remoteErr(phase, err)
	}
	if !e.state.Snapshot().Trusted {
		return remoteErr(phase, ErrUntrustedNetwork)
	}
	if err := e.remote.HealthCheck(ctx); err != nil {
		e.state.UpdateReachability(false)
		return remoteErr(phase, err)
	}
	e.state.UpdateReachability(true)
	return nil
}

func (e *Engine) pull(ctx context.Context, sum *Summary) error {
	since, err := e.watermark.LastSync(ctx)
	if err != nil {
		return localErr(PhasePull, err)
	}

	delta, err := e.fetch(ctx, since)
	if err != nil {
		return err
	}
	if err := e.applyDelta(ctx, delta, sum); err != nil {
		return err
	}
	watermark := delta.ServerTime

	unscanned, err := e.deferred.CountUnscanned(ctx)
	if err != nil {
		return localErr(PhasePull, err)
	}
	if unscanned > 0 && since > 0 {
		// A referenced record may have been dropped here by retention and
		// will not show up in a delta again. One full delta brings it back.
		e.log.Info(ctx, "pulling full delta for deferred records", "deferred", unscanned)
		full, err := e.fetch(ctx, 0)
		if err != nil {
			return err
		}
		if err := e.applyDelta(ctx, full, sum); err != nil {
			return err
		}
		watermark = max(watermark, full.ServerTime)
	}
	if unscanned > 0 {
		if err := e.deferred.MarkRescanned(ctx); err != nil {
			return localErr(PhasePull, err)
		}
	}

	// Only after every record applied or deferred.
	if err := e.watermark.Advance(ctx, watermark); err != nil {
		return localErr(PhasePull, err)
	}
	sum.Watermark = watermark

	waiting, err := e.deferred.Count(ctx)
	if err != nil {
		return localErr(PhasePull, err)
	}
	sum.Deferred = int(waiting)
	return nil
}

func (e *Engine) fetch(ctx context.Context, since int64) (*pb.PullDeltaResponse, error) {
	delta, err := e.remote.PullDelta(ctx, since)
	if err != nil {
		return nil, remoteErr(PhasePull, err)
	}
	if delta == nil || delta.ServerTime <= 0 {
		return nil, pullErr(errors.New("delta without server time"))
	}
	return delta, nil
}

// applyDelta applies each entity in push order, so references point at
// records applied earlier. Deferred records of an entity are retried after
// its fresh records unless the delta carries a newer snapshot of them.
func (e *Engine) applyDelta(ctx context.Context, delta *pb.PullDeltaResponse, sum *Summary) error {
	for _, s := range e.entities {
		entity := string(s.Entity())
		parked, err := e.deferred.List(ctx, entity)
		if err != nil {
			return localErr(PhasePull, err)
		}
		waiting := make(map[string]bool, len(parked))
		for _, p := range parked {
			waiting[p.ServerID] = true
		}

		fresh := delta.Records(s.Entity())
		seen := make(map[string]bool, len(fresh))
		for _, rec := range fresh {
			if rec != nil {
				seen[rec.ID] = true
			}
			if err := e.applyRecord(ctx, s, rec, waiting, sum); err != nil {
				return err
			}
		}

		for _, p := range parked {
			if seen[p.ServerID] {
				continue
			}
			var rec pb.Record
			if err := json.Unmarshal(p.Record, &rec); err != nil {
				e.log.Warn(ctx, "dropping unreadable deferred record", "entity", entity, "server_id", p.ServerID, "error", err)
				if err := e.deferred.Delete(ctx, entity, p.ServerID); err != nil {
					return localErr(PhasePull, err)
				}
				continue
			}
			if err := e.applyRecord(ctx, s, &rec, waiting, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) applyRecord(ctx context.Context, s entitySyncer, rec *pb.Record, waiting map[string]bool, sum *Summary) error {
	entity := string(s.Entity())
	err := s.apply(ctx, e, rec, sum)
	if errors.Is(err, errUnresolved) {
		return e.park(ctx, entity, rec, err)
	}
	if err != nil {
		return err
	}
	if waiting[rec.ID] {
		if err := e.deferred.Delete(ctx, entity, rec.ID); err != nil {
			return localErr(PhasePull, err)
		}
		delete(waiting, rec.ID)
		e.log.Debug(ctx, "deferred record applied", "entity", entity, "server_id", rec.ID)
	}
	return nil
}

// park stores rec for a later pass.
func (e *Engine) park(ctx context.Context, entity string, rec *pb.Record, reason error) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return pullErr(err)
	}
	entry := &deferred.Entry{Entity: entity, ServerID: rec.ID, Record: raw, Reason: reason.Error(), DeferredAt: e.now()}
	if err := e.deferred.Put(ctx, entry); err != nil {
		return localErr(PhasePull, err)
	}
	e.log.Info(ctx, "remote record deferred", "entity", entity, "server_id", rec.ID, "reason", reason)
	return nil
}

// retain deletes synced records created before the retention window.
// Pending records are never selected, and a non-positive window disables
// the phase entirely. Referencing entities go first so the records they
// release can go in the same pass.
func (e *Engine) retain(ctx context.Context, sum *Summary) error {
	if e.cfg.Retention <= 0 {
		return nil
	}
	cutoff := e.now().Add(-e.cfg.Retention)
	for i := len(e.entities) - 1; i >= 0; i-- {
		s := e.entities[i]
		n, err := s.retain(ctx, cutoff)
		if err != nil {
			return localErr(PhaseRetention, err)
		}
		sum.Purged += n
		if n > 0 {
			e.metrics.ItemsPurged.WithLabelValues(string(s.Entity())).Add(float64(n))
		}
	}
	return nil
}

// PendingCount sums the outbox across all entities.
func (e *Engine) PendingCount(ctx context.Context) (int64, error) {
	var total int64
	for _, s := range e.entities {
		n, err := s.pending(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (e *Engine) refreshPending(ctx context.Context) {
	n, err := e.PendingCount(context.WithoutCancel(ctx))
	if err != nil {
		e.log.Warn(ctx, "failed to count pending records", "error", err)
		return
	}
	e.state.SetPending(n)
	e.metrics.PendingItems.Set(float64(n))
}

func (e *Engine) reject(ctx context.Context, sum *Summary, entity pb.Entity, clientID, reason string) {
	sum.Rejected = append(sum.Rejected, Rejection{Entity: entity, ClientID: clientID, Reason: reason})
	e.metrics.ItemsRejected.WithLabelValues(string(entity)).Inc()
	e.log.Warn(ctx, "push rejected", "entity", entity, "client_id", clientID, "reason", reason)
}
