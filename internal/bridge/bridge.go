package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Options configures a Bridge
type Options struct {
	// BreakerThreshold is the number of consecutive spawn failures that opens the breaker
	BreakerThreshold uint32
	// BreakerTimeout is how long the breaker stays open
	BreakerTimeout time.Duration
}

// DefaultOptions returns the stock bridge settings
func DefaultOptions() Options {
	return Options{
		BreakerThreshold: 5,
		BreakerTimeout:   10 * time.Second,
	}
}

// Bridge issues PTY commands and subscriptions over a Transport
type Bridge struct {
	transport Transport
	logger    *zap.Logger
	breaker   *resilience.Breaker

	kills  singleflight.Group
	mu     sync.Mutex
	killed map[types.SessionID]struct{}
}

// New creates a bridge over t
func New(t Transport, logger *zap.Logger, opts Options) *Bridge {
	logger = logging.OrNop(logger)
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = DefaultOptions().BreakerThreshold
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultOptions().BreakerTimeout
	}

	threshold := opts.BreakerThreshold
	breaker := resilience.New("spawn", resilience.Settings{
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: spawnSucceeded,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Bridge{
		transport: t,
		logger:    logger,
		breaker:   breaker,
		killed:    make(map[types.SessionID]struct{}),
	}
}

// spawnSucceeded keeps caller-side failures out of the breaker counts
func spawnSucceeded(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, types.ErrInvalidRequest)
}

// Spawn starts a session in cwd (nil for the backend default) and returns its id
func (b *Bridge) Spawn(ctx context.Context, cwd *string) (types.SessionID, error) {
	return b.SpawnMode(ctx, cwd, "")
}

// SpawnMode is Spawn with an assistant mode; empty leaves the backend default
func (b *Bridge) SpawnMode(ctx context.Context, cwd *string, mode types.Mode) (types.SessionID, error) {
	id, err := resilience.Run(b.breaker, func() (types.SessionID, error) {
		raw, err := b.transport.Invoke(ctx, types.CommandSpawn, types.SpawnArgs{Cwd: cwd, Mode: mode})
		if err != nil {
			return 0, err
		}
		var id types.SessionID
		if err := sonic.Unmarshal(raw, &id); err != nil {
			return 0, fmt.Errorf("decode spawn result: %w", err)
		}
		return id, nil
	})
	if err != nil {
		return 0, fmt.Errorf("spawn: %w", err)
	}

	// A restarted backend may hand out an id this bridge saw killed before
	b.mu.Lock()
	delete(b.killed, id)
	b.mu.Unlock()

	return id, nil
}

// Write sends data to the session's stdin. Failures are logged and dropped.
func (b *Bridge) Write(ctx context.Context, id types.SessionID, data string) {
	_, err := b.transport.Invoke(ctx, types.CommandWrite, types.WriteArgs{SessionID: id, Data: data})
	if err != nil {
		b.logger.Warn("Write failed", logging.Session(uint32(id)), zap.Error(err))
	}
}

// Resize changes the session's PTY size. Failures are logged and dropped.
func (b *Bridge) Resize(ctx context.Context, id types.SessionID, rows, cols uint16) {
	_, err := b.transport.Invoke(ctx, types.CommandResize, types.ResizeArgs{SessionID: id, Rows: rows, Cols: cols})
	if err != nil {
		b.logger.Warn("Resize failed",
			logging.Session(uint32(id)),
			zap.Uint16("rows", rows),
			zap.Uint16("cols", cols),
			zap.Error(err))
	}
}

// Kill terminates the session. Repeating a successful kill is a no-op.
func (b *Bridge) Kill(ctx context.Context, id types.SessionID) error {
	if b.WasKilled(id) {
		return nil
	}

	_, err, _ := b.kills.Do(id.String(), func() (interface{}, error) {
		if b.WasKilled(id) {
			return nil, nil
		}
		_, err := b.transport.Invoke(ctx, types.CommandKill, types.KillArgs{SessionID: id})
		if err != nil && !types.IsSessionNotFound(err) {
			return nil, err
		}
		b.mu.Lock()
		b.killed[id] = struct{}{}
		b.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("kill session %d: %w", id, err)
	}
	return nil
}

// WasKilled reports whether id has been killed through this bridge
func (b *Bridge) WasKilled(id types.SessionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.killed[id]
	return ok
}

// List returns metadata for every backend session
func (b *Bridge) List(ctx context.Context) ([]types.SessionMetadata, error) {
	raw, err := b.transport.Invoke(ctx, types.CommandList, nil)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var sessions []types.SessionMetadata
	if err := sonic.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}
	return sessions, nil
}

// UpdateStatus asks the backend to move a session to status.
// It reports false when the backend does not know the id.
func (b *Bridge) UpdateStatus(ctx context.Context, id types.SessionID, status types.Status) (bool, error) {
	raw, err := b.transport.Invoke(ctx, types.CommandUpdateStatus, types.UpdateStatusArgs{SessionID: id, Status: status})
	if err != nil {
		return false, fmt.Errorf("update status of session %d: %w", id, err)
	}
	var found bool
	if err := sonic.Unmarshal(raw, &found); err != nil {
		return false, fmt.Errorf("decode status result: %w", err)
	}
	return found, nil
}

// AssignBranch records the branch and worktree a session works on and
// returns the backend's updated metadata
func (b *Bridge) AssignBranch(ctx context.Context, id types.SessionID, branch string, worktreePath *string) (types.SessionMetadata, error) {
	raw, err := b.transport.Invoke(ctx, types.CommandAssignBranch, types.AssignBranchArgs{
		SessionID:    id,
		Branch:       branch,
		WorktreePath: worktreePath,
	})
	if err != nil {
		return types.SessionMetadata{}, fmt.Errorf("assign branch to session %d: %w", id, err)
	}
	var meta types.SessionMetadata
	if err := sonic.Unmarshal(raw, &meta); err != nil {
		return types.SessionMetadata{}, fmt.Errorf("decode session metadata: %w", err)
	}
	return meta, nil
}

// SubscribeOutput delivers the session's output chunks to onData in
// backend emission order
func (b *Bridge) SubscribeOutput(ctx context.Context, id types.SessionID, onData func(chunk string)) *Subscription {
	log := b.logger.With(logging.Session(uint32(id)))
	return b.subscribe(ctx, types.OutputTopic(id), func(payload json.RawMessage) {
		var chunk string
		if err := sonic.Unmarshal(payload, &chunk); err != nil {
			log.Warn("Dropping undecodable output", zap.Error(err))
			return
		}
		onData(chunk)
	})
}

// SubscribeStatus delivers every status-change event to onEvent
func (b *Bridge) SubscribeStatus(ctx context.Context, onEvent func(types.StatusEvent)) *Subscription {
	return b.subscribe(ctx, types.StatusTopic, func(payload json.RawMessage) {
		var event types.StatusEvent
		if err := sonic.Unmarshal(payload, &event); err != nil {
			b.logger.Warn("Dropping undecodable status event", zap.Error(err))
			return
		}
		onEvent(event)
	})
}

func (b *Bridge) subscribe(ctx context.Context, topic string, fn Listener) *Subscription {
	listenCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(topic, cancel)

	go func() {
		defer cancel()
		unlisten, err := b.transport.Listen(listenCtx, topic, sub.gate(fn))
		if err != nil && !sub.Disposed() {
			b.logger.Warn("Subscription failed", zap.String("topic", topic), zap.Error(err))
		}
		sub.resolve(unlisten, err)
	}()

	return sub
}
