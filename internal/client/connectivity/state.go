// Package connectivity holds the agent's view of whether it may sync: trusted
// network membership, server reachability, the current sync phase and the
// outbox size. It also persists the pull watermark.
package connectivity

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseSyncing Phase = "SYNCING"
	PhaseError   Phase = "ERROR"
)

// Snapshot is an immutable copy of State.
type Snapshot struct {
	Trusted   bool
	Reachable bool
	Phase     Phase
	LastSync  time.Time
	Pending   int64
	LastError string
}

// CanSync is true on a trusted, reachable network with no pass running.
func (s Snapshot) CanSync() bool {
	return s.Trusted && s.Reachable && s.Phase != PhaseSyncing
}

// State is the single source of truth observed by the scheduler, the engine
// and the UI. It does no I/O.
type State struct {
	mu     sync.Mutex
	snap   Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

func NewState() *State {
	return &State{
		snap: Snapshot{Phase: PhaseIdle},
		subs: make(map[int]chan Snapshot),
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *State) CanSync() bool {
	return s.Snapshot().CanSync()
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers skip intermediate states. The current state is delivered
// immediately. Call the returned func to unsubscribe.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	ch <- s.snap
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// update applies fn and notifies subscribers if anything changed.
func (s *State) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap
	fn(&s.snap)
	if s.snap == prev {
		return
	}
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}

// UpdateNetworkMembership records whether the device is on a trusted
// network. Leaving it also drops reachability.
func (s *State) UpdateNetworkMembership(trusted bool) {
	s.update(func(sn *Snapshot) {
		sn.Trusted = trusted
		if !trusted {
			sn.Reachable = false
		}
	})
}

// UpdateReachability records the last health check. The server never
// counts as reachable off the trusted network.
func (s *State) UpdateReachability(reachable bool) {
	s.update(func(sn *Snapshot) {
		sn.Reachable = reachable && sn.Trusted
	})
}

func (s *State) UpdateSyncPhase(p Phase) {
	s.update(func(sn *Snapshot) {
		sn.Phase = p
	})
}

// FinishPass ends a pass: IDLE with a new LastSync on success, ERROR with the
// failure text otherwise.
func (s *State) FinishPass(at time.Time, err error) {
	s.update(func(sn *Snapshot) {
		if err != nil {
			sn.Phase = PhaseError
			sn.LastError = err.Error()
			return
		}
		sn.Phase = PhaseIdle
		sn.LastError = ""
		sn.LastSync = at
	})
}

// SetLastSync restores the last successful sync time, e.g. from the
// persisted watermark at startup.
func (s *State) SetLastSync(t time.Time) {
	s.update(func(sn *Snapshot) {
		sn.LastSync = t
	})
}

func (s *State) SetPending(n int64) {
	s.update(func(sn *Snapshot) {
		sn.Pending = max(n, 0)
	})
}

func (s *State) AddPending(delta int64) {
	s.update(func(sn *Snapshot) {
		sn.Pending = max(sn.Pending+delta, 0)
	})
}
