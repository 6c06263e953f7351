package connectivity

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanSync(t *testing.T) {
	s := NewState()
	assert.False(t, s.CanSync())

	s.UpdateNetworkMembership(true)
	assert.False(t, s.CanSync(), "trusted but not reachable")

	s.UpdateReachability(true)
	assert.True(t, s.CanSync())

	s.UpdateSyncPhase(PhaseSyncing)
	assert.False(t, s.CanSync(), "a pass is running")

	s.UpdateSyncPhase(PhaseError)
	assert.True(t, s.CanSync(), "errors do not block the next pass")
}

func TestState_LeavingTrustedNetworkDropsReachability(t *testing.T) {
	s := NewState()
	s.UpdateNetworkMembership(true)
	s.UpdateReachability(true)

	s.UpdateNetworkMembership(false)
	snap := s.Snapshot()
	assert.False(t, snap.Trusted)
	assert.False(t, snap.Reachable)

	s.UpdateReachability(true)
	assert.False(t, s.Snapshot().Reachable, "never reachable off the trusted network")
}

func TestState_FinishPass(t *testing.T) {
	s := NewState()
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	s.UpdateSyncPhase(PhaseSyncing)
	s.FinishPass(at, errors.New("pull failed"))
	snap := s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "pull failed", snap.LastError)
	assert.True(t, snap.LastSync.IsZero())

	s.FinishPass(at, nil)
	snap = s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, at, snap.LastSync)
}

func TestState_PendingNeverNegative(t *testing.T) {
	s := NewState()
	s.AddPending(3)
	s.AddPending(-5)
	assert.Equal(t, int64(0), s.Snapshot().Pending)

	s.SetPending(7)
	s.AddPending(-2)
	assert.Equal(t, int64(5), s.Snapshot().Pending)
}

func TestState_SubscribeDeliversLatest(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	assert.Equal(t, PhaseIdle, first.Phase)

	s.SetPending(1)
	s.SetPending(2)
	s.SetPending(3)

	got := <-ch
	assert.Equal(t, int64(3), got.Pending, "intermediate states are coalesced")

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", extra)
	default:
	}
}

func TestState_NoNotificationWithoutChange(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()
	<-ch

	s.UpdateSyncPhase(PhaseIdle)
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot %+v", snap)
	default:
	}
}

func TestState_UnsubscribeClosesChannel(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	s.SetPending(1)
}

func TestState_ConcurrentUpdates(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddPending(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.Snapshot().Pending)
	last := <-ch
	assert.Equal(t, int64(50), last.Pending)
}
