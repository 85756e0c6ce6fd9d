package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/bridge/bridgetest"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

type harness struct {
	backend *bridgetest.Backend
	metrics *monitoring.Metrics
	orch    *Orchestrator
}

func newHarness(t *testing.T, max int) *harness {
	t.Helper()
	backend := bridgetest.New()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	orch := New(bridge.New(backend, nil, bridge.DefaultOptions()), Options{
		MaxSessions: max,
		Metrics:     metrics,
	})
	return &harness{backend: backend, metrics: metrics, orch: orch}
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orch.Mount(context.Background()))
}

func (h *harness) waitPendingSpawns(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.backend.PendingSpawns() == n }, time.Second, time.Millisecond)
}

func TestMountPopulates(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)

	snap := h.orch.Snapshot()
	assert.Equal(t, StatePopulated, snap.State)
	assert.Equal(t, []types.SessionID{1}, snap.IDs)
	assert.Equal(t, Layout{Rows: 1, Cols: 1}, snap.Layout)
	assert.Empty(t, snap.Message())

	assert.ErrorIs(t, h.orch.Mount(context.Background()), ErrAlreadyMounted)
}

func TestSpawnsCarryConfiguredMode(t *testing.T) {
	backend := bridgetest.New()
	b := bridge.New(backend, nil, bridge.DefaultOptions())
	orch := New(b, Options{MaxSessions: 6, Mode: types.ModeClaude})
	ctx := context.Background()

	require.NoError(t, orch.Mount(ctx))
	_, err := orch.AddSession(ctx)
	require.NoError(t, err)

	sessions, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, types.ModeClaude, s.Mode)
	}
}

func TestOperationsBeforeMount(t *testing.T) {
	h := newHarness(t, 6)

	_, err := h.orch.AddSession(context.Background())
	assert.ErrorIs(t, err, ErrNotMounted)
	assert.ErrorIs(t, h.orch.Retry(context.Background()), ErrNotMounted)
	assert.NoError(t, h.orch.Kill(context.Background(), 1))
	assert.Equal(t, StateEmpty, h.orch.Snapshot().State)
}

func TestMountFailureThenRetry(t *testing.T) {
	h := newHarness(t, 6)
	h.backend.FailSpawns(types.NewPtyError(types.CodeSpawnFailed, "no pty"))

	err := h.orch.Mount(context.Background())
	assert.ErrorIs(t, err, types.ErrSpawnFailed)

	snap := h.orch.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Empty(t, snap.IDs)
	assert.Contains(t, snap.Message(), "no pty")

	h.backend.FailSpawns(nil)
	require.NoError(t, h.orch.Retry(context.Background()))

	snap = h.orch.Snapshot()
	assert.Equal(t, StatePopulated, snap.State)
	assert.Len(t, snap.IDs, 1)
	assert.Nil(t, snap.Err)

	// Retry outside StateError does nothing
	require.NoError(t, h.orch.Retry(context.Background()))
	assert.Equal(t, 2, h.backend.SpawnCalls())
}

func TestCancelledMountKillsLateSession(t *testing.T) {
	h := newHarness(t, 6)
	release := h.backend.HoldSpawns()

	done := make(chan error, 1)
	go func() { done <- h.orch.Mount(context.Background()) }()
	h.waitPendingSpawns(t, 1)

	h.orch.Unmount(context.Background())
	release()

	assert.ErrorIs(t, <-done, ErrScopeCancelled)
	assert.Equal(t, []types.SessionID{1}, h.backend.Kills())
	assert.Empty(t, h.backend.Live())
	assert.Empty(t, h.orch.Snapshot().IDs)
}

func TestCancelledParentContextActsAsUnmount(t *testing.T) {
	h := newHarness(t, 6)
	release := h.backend.HoldSpawns()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Mount(ctx) }()
	h.waitPendingSpawns(t, 1)

	cancel()
	release()

	assert.ErrorIs(t, <-done, ErrScopeCancelled)
	assert.Equal(t, []types.SessionID{1}, h.backend.Kills())
}

func TestUnmountAfterParentCancelKillsAdoptedSessions(t *testing.T) {
	h := newHarness(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.orch.Mount(ctx))
	for i := 0; i < 2; i++ {
		_, err := h.orch.AddSession(context.Background())
		require.NoError(t, err)
	}

	cancel()
	h.orch.Unmount(context.Background())

	assert.ElementsMatch(t, []types.SessionID{1, 2, 3}, h.backend.Kills())
	assert.Empty(t, h.backend.Live())
	snap := h.orch.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Empty(t, snap.IDs)

	h.orch.Unmount(context.Background())
	assert.Len(t, h.backend.Kills(), 3)
}

func TestParentCancelEmptiesWorkspace(t *testing.T) {
	h := newHarness(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.orch.Mount(ctx))
	_, err := h.orch.AddSession(context.Background())
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		snap := h.orch.Snapshot()
		return snap.State == StateEmpty && len(snap.IDs) == 0
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(h.backend.Kills()) == 2 }, time.Second, time.Millisecond)
	assert.Empty(t, h.backend.Live())

	_, err = h.orch.AddSession(context.Background())
	assert.ErrorIs(t, err, ErrNotMounted)

	// A fresh mount starts over with one session
	require.NoError(t, h.orch.Mount(context.Background()))
	snap := h.orch.Snapshot()
	assert.Equal(t, StatePopulated, snap.State)
	assert.Equal(t, []types.SessionID{3}, snap.IDs)
}

// One live session, six adds in flight together and a seventh issued once
// they settle: the cap holds at six and exactly one spawn is discarded.
func TestAddSessionSettlesAtCap(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)

	release := h.backend.HoldSpawns()
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := h.orch.AddSession(context.Background())
			errs <- err
		}()
	}
	h.waitPendingSpawns(t, 6)
	release()

	var atCapacity int
	for i := 0; i < 6; i++ {
		if err := <-errs; err != nil {
			require.ErrorIs(t, err, ErrAtCapacity)
			atCapacity++
		}
	}
	assert.Equal(t, 1, atCapacity)

	_, err := h.orch.AddSession(context.Background())
	assert.ErrorIs(t, err, ErrAtCapacity)

	snap := h.orch.Snapshot()
	assert.Len(t, snap.IDs, 6)
	assert.Equal(t, Layout{Rows: 2, Cols: 3}, snap.Layout)
	assert.Len(t, h.backend.Kills(), 1)
	assert.Equal(t, 7, h.backend.SpawnCalls())
	assert.Len(t, h.backend.Live(), 6)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.OverflowKills))
}

func TestConcurrentAddsNeverExceedCap(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)

	var mu sync.Mutex
	maxSeen := 0
	h.orch.OnChange(func(s Snapshot) {
		mu.Lock()
		if len(s.IDs) > maxSeen {
			maxSeen = len(s.IDs)
		}
		mu.Unlock()
	})

	release := h.backend.HoldSpawns()
	var wg sync.WaitGroup
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.orch.AddSession(context.Background())
		}()
	}
	h.waitPendingSpawns(t, 7)
	release()
	wg.Wait()

	assert.Len(t, h.orch.Snapshot().IDs, 6)
	assert.Len(t, h.backend.Kills(), 2)
	assert.Len(t, h.backend.Live(), 6)

	mu.Lock()
	assert.LessOrEqual(t, maxSeen, 6)
	mu.Unlock()
}

func TestAddSessionFailureLeavesGridUnchanged(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	h.backend.FailSpawns(errors.New("backend busy"))

	_, err := h.orch.AddSession(context.Background())
	assert.Error(t, err)

	snap := h.orch.Snapshot()
	assert.Equal(t, StatePopulated, snap.State)
	assert.Equal(t, []types.SessionID{1}, snap.IDs)
}

func TestKillLastSessionRespawnsExactlyOne(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)

	require.NoError(t, h.orch.Kill(context.Background(), 1))

	snap := h.orch.Snapshot()
	assert.Equal(t, StatePopulated, snap.State)
	assert.Equal(t, []types.SessionID{2}, snap.IDs)
	assert.Equal(t, 2, h.backend.SpawnCalls())
	assert.Equal(t, []types.SessionID{1}, h.backend.Kills())

	// A second kill of the already removed id changes nothing
	require.NoError(t, h.orch.Kill(context.Background(), 1))
	assert.Equal(t, []types.SessionID{2}, h.orch.Snapshot().IDs)
	assert.Equal(t, 2, h.backend.SpawnCalls())
}

func TestConcurrentKillsOfLastSessionRespawnOnce(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.orch.Kill(context.Background(), 1)
		}()
	}
	wg.Wait()

	assert.Len(t, h.orch.Snapshot().IDs, 1)
	assert.Equal(t, 2, h.backend.SpawnCalls())
}

func TestKillNonLastSessionDoesNotRespawn(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	id, err := h.orch.AddSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.orch.Kill(context.Background(), id))

	assert.Equal(t, []types.SessionID{1}, h.orch.Snapshot().IDs)
	assert.Equal(t, 2, h.backend.SpawnCalls())
}

func TestRespawnFailureEntersError(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	h.backend.FailSpawns(types.NewPtyError(types.CodeSpawnFailed, "exhausted"))

	err := h.orch.Kill(context.Background(), 1)
	assert.ErrorIs(t, err, types.ErrSpawnFailed)
	assert.Equal(t, StateError, h.orch.Snapshot().State)

	h.backend.FailSpawns(nil)
	require.NoError(t, h.orch.Retry(context.Background()))
	assert.Equal(t, StatePopulated, h.orch.Snapshot().State)
}

func TestRespawnCancelledByUnmount(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	release := h.backend.HoldSpawns()

	done := make(chan error, 1)
	go func() { done <- h.orch.Kill(context.Background(), 1) }()
	h.waitPendingSpawns(t, 1)

	h.orch.Unmount(context.Background())
	release()

	assert.ErrorIs(t, <-done, ErrScopeCancelled)
	assert.ElementsMatch(t, []types.SessionID{1, 2}, h.backend.Kills())
	assert.Empty(t, h.backend.Live())
	assert.Empty(t, h.orch.Snapshot().IDs)
}

func TestKillFailureIsOptimistic(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	id, err := h.orch.AddSession(context.Background())
	require.NoError(t, err)

	h.backend.FailKill(id, types.NewPtyError(types.CodeKillFailed, "EPERM"))
	require.NoError(t, h.orch.Kill(context.Background(), id))

	assert.Equal(t, []types.SessionID{1}, h.orch.Snapshot().IDs)
	assert.Equal(t, []types.SessionID{id}, h.orch.Orphans())
}

func TestUnmountKillsEverySession(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	for i := 0; i < 2; i++ {
		_, err := h.orch.AddSession(context.Background())
		require.NoError(t, err)
	}
	h.backend.FailKill(2, errors.New("transport closed"))

	h.orch.Unmount(context.Background())

	assert.ElementsMatch(t, []types.SessionID{1, 2, 3}, h.backend.Kills())
	assert.Equal(t, StateEmpty, h.orch.Snapshot().State)
	assert.Equal(t, []types.SessionID{2}, h.orch.Orphans())

	// Unmount is idempotent and no respawn happens afterwards
	h.orch.Unmount(context.Background())
	assert.Len(t, h.backend.Kills(), 3)
	assert.Equal(t, 3, h.backend.SpawnCalls())
}

func TestReconcile(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	ctx := context.Background()

	stuck, err := h.orch.AddSession(ctx)
	require.NoError(t, err)
	gone, err := h.orch.AddSession(ctx)
	require.NoError(t, err)

	h.backend.FailKill(stuck, errors.New("timeout"))
	h.backend.FailKill(gone, errors.New("timeout"))
	require.NoError(t, h.orch.Kill(ctx, stuck))
	require.NoError(t, h.orch.Kill(ctx, gone))
	require.Equal(t, []types.SessionID{stuck, gone}, h.orch.Orphans())

	// gone disappears behind the orchestrator's back
	h.backend.FailKill(gone, nil)
	_, err = h.backend.Invoke(ctx, types.CommandKill, types.KillArgs{SessionID: gone})
	require.NoError(t, err)
	killsBefore := len(h.backend.Kills())

	// stuck still fails once more
	require.Error(t, h.orch.Reconcile(ctx))
	assert.Equal(t, []types.SessionID{stuck}, h.orch.Orphans())

	h.backend.FailKill(stuck, nil)
	require.NoError(t, h.orch.Reconcile(ctx))
	assert.Empty(t, h.orch.Orphans())
	assert.Equal(t, killsBefore+2, len(h.backend.Kills()))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ReconcileKills))

	// Nothing to reconcile: no list call
	lists := h.backend.ListCalls()
	require.NoError(t, h.orch.Reconcile(ctx))
	assert.Equal(t, lists, h.backend.ListCalls())
}

func TestRunReconcilerStopsOnCancel(t *testing.T) {
	h := newHarness(t, 6)
	h.mount(t)
	id, err := h.orch.AddSession(context.Background())
	require.NoError(t, err)
	h.backend.FailKill(id, errors.New("timeout"))
	require.NoError(t, h.orch.Kill(context.Background(), id))
	h.backend.FailKill(id, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.orch.RunReconciler(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(h.orch.Orphans()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestOnChangeSeesLayout(t *testing.T) {
	h := newHarness(t, 6)

	var mu sync.Mutex
	var states []State
	var last Snapshot
	remove := h.orch.OnChange(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		last = s
		mu.Unlock()
	})

	h.mount(t)
	_, err := h.orch.AddSession(context.Background())
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []State{StateStarting, StatePopulated, StatePopulated}, states)
	assert.Equal(t, Layout{Rows: 1, Cols: 2}, last.Layout)
	mu.Unlock()

	remove()
	_, err = h.orch.AddSession(context.Background())
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, states, 3)
	mu.Unlock()
}
