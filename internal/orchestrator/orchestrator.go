package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// DefaultMaxSessions is the stock session cap
const DefaultMaxSessions = 6

// teardownTimeout bounds the kills issued when a scope dies with its parent
const teardownTimeout = 10 * time.Second

// Bridge is the part of the PTY bridge the orchestrator drives
type Bridge interface {
	SpawnMode(ctx context.Context, cwd *string, mode types.Mode) (types.SessionID, error)
	Kill(ctx context.Context, id types.SessionID) error
	List(ctx context.Context) ([]types.SessionMetadata, error)
}

// Options configures an Orchestrator
type Options struct {
	// MaxSessions caps the live id set
	MaxSessions int
	// Cwd is passed to every spawn; nil uses the backend default
	Cwd *string
	// Mode is recorded on every spawned session; empty is the backend default
	Mode    types.Mode
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

type scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	// unmounted is set, under Orchestrator.mu, by the one teardown that
	// claims the scope's ids; torn closes once their kills have returned
	unmounted bool
	torn      chan struct{}
}

func (s *scope) cancelled() bool {
	return s.ctx.Err() != nil
}

// Orchestrator owns the live session set of one workspace
type Orchestrator struct {
	bridge  Bridge
	max     int
	cwd     *string
	mode    types.Mode
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	state   State
	ids     []types.SessionID
	lastErr error
	mounted bool
	scope   *scope
	orphans map[types.SessionID]struct{}
	version uint64

	obsMu        sync.Mutex
	observers    map[int]func(Snapshot)
	nextObserver int
	notified     uint64
}

// New creates an unmounted orchestrator
func New(b Bridge, opts Options) *Orchestrator {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &Orchestrator{
		bridge:    b,
		max:       opts.MaxSessions,
		cwd:       opts.Cwd,
		mode:      opts.Mode,
		logger:    logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
		orphans:   make(map[types.SessionID]struct{}),
		observers: make(map[int]func(Snapshot)),
	}
}

// MaxSessions returns the session cap
func (o *Orchestrator) MaxSessions() int {
	return o.max
}

// Mount opens a scope under ctx and spawns the first session.
// Cancelling ctx tears the scope down the same way Unmount does.
func (o *Orchestrator) Mount(ctx context.Context) error {
	o.mu.Lock()
	if prev := o.scope; prev != nil && !prev.unmounted {
		if !prev.cancelled() {
			o.mu.Unlock()
			return ErrAlreadyMounted
		}
		// The parent of the previous scope is gone but its teardown has
		// not claimed the ids yet
		o.mu.Unlock()
		o.teardown(ctx, prev)
		o.mu.Lock()
		if o.scope != prev && o.scope != nil && !o.scope.unmounted {
			o.mu.Unlock()
			return ErrAlreadyMounted
		}
	}
	sctx, cancel := context.WithCancel(ctx)
	sc := &scope{ctx: sctx, cancel: cancel, torn: make(chan struct{})}
	context.AfterFunc(sctx, func() {
		tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer tcancel()
		o.teardown(tctx, sc)
	})
	o.scope = sc
	o.ids = nil
	o.lastErr = nil
	o.mounted = false
	o.setStateLocked(StateStarting)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	return o.spawnFirst(sc)
}

// Retry re-attempts the spawn that put the orchestrator in StateError
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	sc := o.scope
	if sc == nil || sc.cancelled() {
		o.mu.Unlock()
		return ErrNotMounted
	}
	if o.state != StateError {
		o.mu.Unlock()
		return nil
	}
	o.lastErr = nil
	o.setStateLocked(StateStarting)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	return o.spawnFirst(sc)
}

// spawnFirst spawns into an empty set: initial mount, retry or respawn
func (o *Orchestrator) spawnFirst(sc *scope) error {
	id, err := o.bridge.SpawnMode(context.WithoutCancel(sc.ctx), o.cwd, o.mode)

	o.mu.Lock()
	if sc.cancelled() || o.scope != sc {
		o.mu.Unlock()
		if err == nil {
			o.discard(id, "scope cancelled before spawn resolved")
		}
		return ErrScopeCancelled
	}

	if err != nil {
		if len(o.ids) > 0 {
			// An AddSession landed while this spawn was in flight
			o.mu.Unlock()
			o.logger.Warn("Replacement spawn failed", zap.Error(err))
			return err
		}
		o.lastErr = err
		o.setStateLocked(StateError)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.notify(snap)
		o.logger.Error("Failed to start terminal", zap.Error(err))
		return err
	}

	if len(o.ids) >= o.max {
		o.mu.Unlock()
		o.metrics.IncOverflowKills()
		o.discard(id, "session limit reached")
		return ErrAtCapacity
	}

	o.ids = append(o.ids, id)
	o.mounted = true
	o.setStateLocked(StatePopulated)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	o.logger.Info("Session started", logging.Session(uint32(id)))
	return nil
}

// AddSession spawns one more session. It returns ErrAtCapacity, without
// spawning, when the cap is already reached, and kills the new session if
// the cap filled while the spawn was in flight.
func (o *Orchestrator) AddSession(ctx context.Context) (types.SessionID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	sc := o.scope
	if sc == nil || sc.cancelled() {
		o.mu.Unlock()
		return 0, ErrNotMounted
	}
	if len(o.ids) >= o.max {
		o.mu.Unlock()
		return 0, ErrAtCapacity
	}
	o.mu.Unlock()

	id, err := o.bridge.SpawnMode(context.WithoutCancel(sc.ctx), o.cwd, o.mode)
	if err != nil {
		o.logger.Warn("Failed to add session", zap.Error(err))
		return 0, fmt.Errorf("add session: %w", err)
	}

	o.mu.Lock()
	if sc.cancelled() || o.scope != sc {
		o.mu.Unlock()
		o.discard(id, "scope cancelled before spawn resolved")
		return 0, ErrScopeCancelled
	}
	if len(o.ids) >= o.max {
		o.mu.Unlock()
		o.metrics.IncOverflowKills()
		o.discard(id, "session limit reached")
		return 0, ErrAtCapacity
	}
	o.ids = append(o.ids, id)
	o.setStateLocked(StatePopulated)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	o.logger.Info("Session added", logging.Session(uint32(id)), zap.Int("count", len(snap.IDs)))
	return id, nil
}

// Kill removes id from the set and kills it on the backend. The removal
// is not rolled back if the backend kill fails; the id is kept as an
// orphan for Reconcile. When the set empties after a completed mount
// outside StateError, one replacement session is spawned; its failure is
// the returned error.
func (o *Orchestrator) Kill(ctx context.Context, id types.SessionID) error {
	o.mu.Lock()
	idx := indexOf(o.ids, id)
	if idx < 0 {
		o.mu.Unlock()
		return nil
	}
	o.ids = append(o.ids[:idx:idx], o.ids[idx+1:]...)

	sc := o.scope
	respawn := len(o.ids) == 0 && o.mounted && o.state != StateError && sc != nil && !sc.cancelled()
	switch {
	case respawn:
		o.setStateLocked(StateStarting)
	case len(o.ids) == 0:
		o.setStateLocked(StateEmpty)
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	o.killBestEffort(ctx, id)

	if !respawn {
		return nil
	}
	o.logger.Info("Last session closed, spawning replacement")
	return o.spawnFirst(sc)
}

// Unmount cancels the scope and kills every owned session. Failures are
// logged and the ids kept as orphans; nothing is retried here. It also
// completes a teardown already started by cancellation of the Mount
// context, returning once those kills have finished or ctx is done.
func (o *Orchestrator) Unmount(ctx context.Context) {
	o.mu.Lock()
	sc := o.scope
	o.mu.Unlock()
	if sc == nil {
		return
	}
	o.teardown(ctx, sc)
}

// teardown cancels sc and kills the ids it owns. Only the first call
// claims the ids; later calls wait for its kills.
func (o *Orchestrator) teardown(ctx context.Context, sc *scope) {
	o.mu.Lock()
	if sc.unmounted {
		o.mu.Unlock()
		select {
		case <-sc.torn:
		case <-ctx.Done():
		}
		return
	}
	sc.unmounted = true
	sc.cancel()

	var ids []types.SessionID
	var snap Snapshot
	owner := o.scope == sc
	if owner {
		ids = o.ids
		o.ids = nil
		o.mounted = false
		o.setStateLocked(StateEmpty)
		snap = o.snapshotLocked()
	}
	o.mu.Unlock()
	defer close(sc.torn)
	if !owner {
		return
	}
	o.notify(snap)

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			o.killBestEffort(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("Workspace unmounted", zap.Int("killed", len(ids)))
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// OnChange registers fn to observe every committed change. Observers are
// called in commit order; a snapshot superseded before delivery is skipped.
func (o *Orchestrator) OnChange(fn func(Snapshot)) (remove func()) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.nextObserver++
	key := o.nextObserver
	o.observers[key] = fn
	return func() {
		o.obsMu.Lock()
		delete(o.observers, key)
		o.obsMu.Unlock()
	}
}

// Orphans returns ids whose backend kill failed and is not yet reconciled
func (o *Orchestrator) Orphans() []types.SessionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.SessionID, 0, len(o.orphans))
	for id := range o.orphans {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reconcile lists the backend and re-kills orphans it still reports.
// Orphans the backend no longer knows are forgotten.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	orphans := o.Orphans()
	if len(orphans) == 0 {
		return nil
	}

	sessions, err := o.bridge.List(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	present := make(map[types.SessionID]struct{}, len(sessions))
	for _, s := range sessions {
		present[s.ID] = struct{}{}
	}

	var errs []error
	for _, id := range orphans {
		if _, ok := present[id]; !ok {
			o.forgetOrphan(id)
			continue
		}
		if err := o.bridge.Kill(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		o.forgetOrphan(id)
		o.metrics.IncReconcileKills()
		o.logger.Info("Reconciled orphaned session", logging.Session(uint32(id)))
	}
	return errors.Join(errs...)
}

// RunReconciler calls Reconcile every interval until ctx is done
func (o *Orchestrator) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Reconcile(ctx); err != nil {
				o.logger.Warn("Reconcile failed", zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) killBestEffort(ctx context.Context, id types.SessionID) {
	if err := o.bridge.Kill(ctx, id); err != nil {
		o.logger.Warn("Failed to kill session", logging.Session(uint32(id)), zap.Error(err))
		o.mu.Lock()
		o.orphans[id] = struct{}{}
		o.mu.Unlock()
	}
}

// discard kills a session that was spawned but never admitted
func (o *Orchestrator) discard(id types.SessionID, reason string) {
	o.logger.Info("Discarding session", logging.Session(uint32(id)), zap.String("reason", reason))
	o.killBestEffort(context.Background(), id)
}

func (o *Orchestrator) forgetOrphan(id types.SessionID) {
	o.mu.Lock()
	delete(o.orphans, id)
	o.mu.Unlock()
}

func (o *Orchestrator) setStateLocked(s State) {
	o.state = s
	o.version++
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	o.version++
	ids := append([]types.SessionID(nil), o.ids...)
	snap := Snapshot{
		State:  o.state,
		IDs:    ids,
		Layout: LayoutFor(len(ids)),
		Err:    o.lastErr,
	}
	snap.version = o.version
	return snap
}

func (o *Orchestrator) notify(snap Snapshot) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()

	if snap.version <= o.notified {
		return
	}
	o.notified = snap.version

	keys := make([]int, 0, len(o.observers))
	for k := range o.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		o.observers[k](snap)
	}
}

func indexOf(ids []types.SessionID, id types.SessionID) int {
	for i, cur := range ids {
		if cur == id {
			return i
		}
	}
	return -1
}
