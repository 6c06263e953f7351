// Package scheduler decides when sync passes run: it checks connectivity on
// an interval, keeps at most one pass queued or running, and retries failed
// passes with exponential backoff.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/syncer"
	"github.com/dmitrijs2005/financehub/internal/logging"
	"github.com/dmitrijs2005/financehub/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultCheckInterval = 15 * time.Minute
	DefaultBackoffFloor  = 30 * time.Second
	DefaultHealthTimeout = 10 * time.Second
)

// Engine runs one sync pass.
type Engine interface {
	PerformFullSync(ctx context.Context) (*syncer.Summary, error)
}

// HealthChecker is the reachability check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Config struct {
	TrustedNetworks []string
	CheckInterval   time.Duration
	HealthTimeout   time.Duration
	BackoffFloor    time.Duration
	// BackoffCap bounds a single retry delay; zero means no cap.
	BackoffCap time.Duration
}

// job is one unit of sync work. done closes when it has finished or was
// cancelled.
type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	engine   Engine
	health   HealthChecker
	detector connectivity.NetworkDetector
	state    *connectivity.State
	cfg      Config
	log      logging.Logger
	metrics  *metrics.SyncMetrics

	mu      sync.Mutex
	base    context.Context
	current *job
	backoff retry.Backoff
	retryAt time.Time
}

type Option func(*Scheduler)

func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.log = l.With("module", "scheduler") }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(engine Engine, health HealthChecker, detector connectivity.NetworkDetector,
	state *connectivity.State, cfg Config, opts ...Option) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = DefaultBackoffFloor
	}
	s := &Scheduler{
		engine:   engine,
		health:   health,
		detector: detector,
		state:    state,
		cfg:      cfg,
		log:      logging.Nop(),
		metrics:  metrics.NewSyncMetrics(nil),
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backoff = s.newBackoff()
	return s
}

func (s *Scheduler) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.BackoffFloor)
	if s.cfg.BackoffCap > 0 {
		b = retry.WithCappedDuration(s.cfg.BackoffCap, b)
	}
	return b
}

// Run checks immediately and then every CheckInterval until ctx is done.
// Passes started by the scheduler are cancelled when Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			s.CancelAll()
			return nil
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow refreshes trusted-network membership and, on a trusted network
// only, server reachability. A sync is requested whenever syncing is
// allowed afterwards.
func (s *Scheduler) CheckNow(ctx context.Context) connectivity.Snapshot {
	name, err := s.detector.CurrentNetwork(ctx)
	if err != nil {
		s.log.Warn(ctx, "network detection failed", "error", err)
	}
	trusted := connectivity.IsTrusted(name, s.cfg.TrustedNetworks)
	s.state.UpdateNetworkMembership(trusted)

	reachable := false
	if trusted {
		hctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
		err := s.health.HealthCheck(hctx)
		cancel()
		if err != nil {
			s.log.Info(ctx, "server unreachable", "error", err)
		}
		reachable = err == nil
	}
	s.state.UpdateReachability(reachable)
	s.metrics.SetConnectivity(trusted, reachable)

	snap := s.state.Snapshot()
	s.log.Debug(ctx, "connectivity check finished", "network", name, "trusted", trusted, "reachable", reachable)
	if snap.CanSync() {
		s.RequestSync("check")
	}
	return snap
}

// RequestSync replaces any queued or running pass with a new one. A pending
// backoff delay is kept. The returned channel closes when the new pass has
// finished or was itself replaced.
func (s *Scheduler) RequestSync(reason string) <-chan struct{} {
	s.mu.Lock()
	delay := time.Until(s.retryAt)
	s.mu.Unlock()
	return s.enqueue(max(delay, 0), reason)
}

// Expedite runs a pass now, ignoring any backoff, under the same replace
// rule and connectivity gate as RequestSync.
func (s *Scheduler) Expedite(reason string) <-chan struct{} {
	return s.enqueue(0, reason)
}

// CancelAll cancels the queued or running pass and waits for it to stop.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	j := s.current
	s.current = nil
	s.retryAt = time.Time{}
	s.mu.Unlock()

	if j != nil {
		j.cancel()
		<-j.done
	}
}

func (s *Scheduler) enqueue(delay time.Duration, reason string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(delay, reason)
}

// enqueueLocked must be called with s.mu held.
func (s *Scheduler) enqueueLocked(delay time.Duration, reason string) <-chan struct{} {
	prev := s.current
	ctx, cancel := context.WithCancel(s.base)
	j := &job{cancel: cancel, done: make(chan struct{})}
	s.current = j

	go func() {
		defer close(j.done)
		defer cancel()

		// Replace: the previous pass is stopped before this one may start.
		if prev != nil {
			prev.cancel()
			<-prev.done
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, j, reason)
	}()
	return j.done
}

func (s *Scheduler) run(ctx context.Context, self *job, reason string) {
	if !s.state.CanSync() {
		s.metrics.PassesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		s.log.Info(ctx, "sync skipped", "reason", reason, "state", s.state.Snapshot())
		return
	}

	s.log.Debug(ctx, "sync starting", "reason", reason)
	_, err := s.engine.PerformFullSync(ctx)
	if err == nil {
		s.mu.Lock()
		s.backoff = s.newBackoff()
		s.retryAt = time.Time{}
		s.mu.Unlock()
		return
	}

	if ctx.Err() != nil {
		// Replaced or cancelled; the replacement decides what happens next.
		return
	}
	if !syncer.IsRetryable(err) {
		s.log.Warn(ctx, "sync failed, waiting for the next trigger", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != self {
		// A newer pass was queued while this one was finishing.
		s.log.Info(ctx, "sync failed, superseded by a newer request", "error", err)
		return
	}
	delay, _ := s.backoff.Next()
	s.retryAt = time.Now().Add(delay)
	s.log.Info(ctx, "sync failed, retrying", "error", err, "backoff", delay)
	s.enqueueLocked(delay, "retry")
}
