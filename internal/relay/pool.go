package relay

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Pool keeps one relay per live session
type Pool struct {
	ctx     context.Context
	cmd     Commander
	factory SurfaceFactory
	logger  *zap.Logger

	mu     sync.Mutex
	relays map[types.SessionID]*Relay
	closed bool
}

// NewPool creates an empty pool
func NewPool(ctx context.Context, cmd Commander, factory SurfaceFactory, logger *zap.Logger) *Pool {
	return &Pool{
		ctx:     ctx,
		cmd:     cmd,
		factory: factory,
		logger:  logging.OrNop(logger),
		relays:  make(map[types.SessionID]*Relay),
	}
}

// Sync activates relays for ids not yet bound and deactivates relays whose
// id is gone
func (p *Pool) Sync(ids []types.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	want := make(map[types.SessionID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	for id, r := range p.relays {
		if _, ok := want[id]; !ok {
			r.Deactivate()
			delete(p.relays, id)
		}
	}

	for _, id := range ids {
		if _, ok := p.relays[id]; ok {
			continue
		}
		r, err := Activate(p.ctx, id, p.cmd, p.factory, p.logger)
		if err != nil {
			p.logger.Warn("Failed to activate relay", logging.Session(uint32(id)), zap.Error(err))
			continue
		}
		p.relays[id] = r
	}
}

// Relay returns the relay bound to id
func (p *Pool) Relay(id types.SessionID) (*Relay, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.relays[id]
	return r, ok
}

// IDs returns the bound session ids in ascending order
func (p *Pool) IDs() []types.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]types.SessionID, 0, len(p.relays))
	for id := range p.relays {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close deactivates every relay; later Syncs are ignored
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for id, r := range p.relays {
		r.Deactivate()
		delete(p.relays, id)
	}
}
