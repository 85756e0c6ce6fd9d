package relay

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Relay wires one session to one surface
type Relay struct {
	id      types.SessionID
	surface Surface
	logger  *zap.Logger
	cancel  context.CancelFunc

	// Held for reading around surface writes; Deactivate takes it
	// for writing so no write is in flight once disposed is set.
	mu       sync.RWMutex
	disposed bool

	detachInput  func()
	detachResize func()
	output       *bridge.Subscription
}

// Activate builds the session's surface and starts all three flows
func Activate(ctx context.Context, id types.SessionID, cmd Commander, factory SurfaceFactory, logger *zap.Logger) (*Relay, error) {
	surface, err := factory(id)
	if err != nil {
		return nil, fmt.Errorf("create surface for session %d: %w", id, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Relay{
		id:      id,
		surface: surface,
		logger:  logging.OrNop(logger).With(logging.Session(uint32(id))),
		cancel:  cancel,
	}

	r.detachInput = surface.OnInput(func(data string) {
		if r.isDisposed() {
			return
		}
		cmd.Write(ctx, id, data)
	})
	r.detachResize = surface.OnResize(func(rows, cols uint16) {
		if r.isDisposed() {
			return
		}
		cmd.Resize(ctx, id, rows, cols)
	})
	r.output = cmd.SubscribeOutput(ctx, id, r.deliver)

	r.logger.Debug("Relay activated")
	return r, nil
}

// ID returns the session id
func (r *Relay) ID() types.SessionID {
	return r.id
}

// Surface returns the bound surface
func (r *Relay) Surface() Surface {
	return r.surface
}

func (r *Relay) deliver(chunk string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disposed {
		return
	}
	r.surface.Write(chunk)
}

func (r *Relay) isDisposed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disposed
}

// Deactivate tears the relay down. Safe to call more than once.
func (r *Relay) Deactivate() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.mu.Unlock()

	if r.detachInput != nil {
		r.detachInput()
	}
	if r.detachResize != nil {
		r.detachResize()
	}
	if r.output != nil {
		r.output.Dispose()
	}
	r.surface.Dispose()
	r.cancel()

	r.logger.Debug("Relay deactivated")
}
