package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Bridge is the part of the PTY bridge the registry uses
type Bridge interface {
	List(ctx context.Context) ([]types.SessionMetadata, error)
	SubscribeStatus(ctx context.Context, onEvent func(types.StatusEvent)) *bridge.Subscription
}

// Registry is the process-wide session metadata cache
type Registry struct {
	bridge  Bridge
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	sessions []types.SessionMetadata

	subMu  sync.Mutex
	refs   int
	sub    *bridge.Subscription
	closed bool

	obsMu        sync.Mutex
	observers    map[int]func([]types.SessionMetadata)
	nextObserver int
}

// New creates an empty registry
func New(b Bridge, logger *zap.Logger, metrics *monitoring.Metrics) *Registry {
	return &Registry{
		bridge:    b,
		logger:    logging.OrNop(logger),
		metrics:   metrics,
		observers: make(map[int]func([]types.SessionMetadata)),
	}
}

// Fetch replaces the cache with the backend's session list
func (r *Registry) Fetch(ctx context.Context) error {
	sessions, err := r.bridge.List(ctx)
	if err != nil {
		r.logger.Warn("Failed to fetch sessions", zap.Error(err))
		return fmt.Errorf("fetch sessions: %w", err)
	}

	r.mu.Lock()
	r.sessions = sessions
	snapshot := r.copyLocked()
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// Subscribe takes a reference on the shared status listener. The returned
// dispose func releases it; calls after the first are no-ops.
func (r *Registry) Subscribe() (dispose func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return func() {}
	}

	r.refs++
	if r.refs == 1 {
		r.sub = r.bridge.SubscribeStatus(context.Background(), r.apply)
		r.metrics.SetStatusListeners(1)
		r.logger.Debug("Status listener attached")
	}

	var once sync.Once
	return func() {
		once.Do(r.release)
	}
}

func (r *Registry) release() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed || r.refs == 0 {
		return
	}
	r.refs--
	if r.refs == 0 {
		r.teardownLocked()
	}
}

func (r *Registry) teardownLocked() {
	if r.sub == nil {
		return
	}
	r.sub.Dispose()
	r.sub = nil
	r.metrics.SetStatusListeners(0)
	r.logger.Debug("Status listener detached")
}

// Refs returns the number of outstanding subscriptions
func (r *Registry) Refs() int {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.refs
}

// Listening reports whether the underlying listener exists
func (r *Registry) Listening() bool {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.sub != nil
}

// Close tears down the listener regardless of outstanding references.
// Later Subscribe calls return no-op disposers.
func (r *Registry) Close() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.refs = 0
	r.teardownLocked()
}

// Get returns the cached metadata for id
func (r *Registry) Get(id types.SessionID) (types.SessionMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return types.SessionMetadata{}, false
}

// List returns the cached sessions ordered by id
func (r *Registry) List() []types.SessionMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

// OnUpdate registers fn to receive the cache after every change
func (r *Registry) OnUpdate(fn func([]types.SessionMetadata)) (remove func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.nextObserver++
	key := r.nextObserver
	r.observers[key] = fn
	return func() {
		r.obsMu.Lock()
		delete(r.observers, key)
		r.obsMu.Unlock()
	}
}

// apply updates the matching entry in place
func (r *Registry) apply(event types.StatusEvent) {
	r.mu.Lock()
	idx := -1
	for i := range r.sessions {
		if r.sessions[i].ID == event.SessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.sessions[idx].Status = event.Status
	snapshot := r.copyLocked()
	r.mu.Unlock()

	r.logger.Debug("Session status changed",
		logging.Session(uint32(event.SessionID)),
		zap.String("status", string(event.Status)))
	r.notify(snapshot)
}

func (r *Registry) copyLocked() []types.SessionMetadata {
	out := append([]types.SessionMetadata(nil), r.sessions...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) notify(snapshot []types.SessionMetadata) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for _, fn := range r.observers {
		fn(snapshot)
	}
}
