// Package bridgetest provides in-memory bridge transports for tests.
package bridgetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Backend is a fake PTY backend implementing bridge.Transport.
// Spawn and listen calls can be held open to stage races.
type Backend struct {
	mu       sync.Mutex
	nextID   uint32
	sessions map[types.SessionID]*types.SessionMetadata

	spawnGate     chan struct{}
	listenGate    chan struct{}
	pendingSpawns int
	pendingListen int

	spawnErr error
	killErr  map[types.SessionID]error

	spawnCalls int
	kills      []types.SessionID
	writes     []types.WriteArgs
	resizes    []types.ResizeArgs
	lists      int

	nextListener uint64
	listeners    map[string]map[uint64]bridge.Listener
	listenCalls  int
	unlistens    int
}

var _ bridge.Transport = (*Backend)(nil)

// New creates an empty backend
func New() *Backend {
	return &Backend{
		sessions:  make(map[types.SessionID]*types.SessionMetadata),
		killErr:   make(map[types.SessionID]error),
		listeners: make(map[string]map[uint64]bridge.Listener),
	}
}

// HoldSpawns blocks spawn calls until the returned release func is called
func (b *Backend) HoldSpawns() (release func()) {
	return b.hold(&b.spawnGate)
}

// HoldListens blocks listen calls until the returned release func is called
func (b *Backend) HoldListens() (release func()) {
	return b.hold(&b.listenGate)
}

func (b *Backend) hold(gate *chan struct{}) func() {
	b.mu.Lock()
	ch := make(chan struct{})
	*gate = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if *gate == ch {
				*gate = nil
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// FailSpawns makes every spawn fail with err until called with nil
func (b *Backend) FailSpawns(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spawnErr = err
}

// FailKill makes kills of id fail with err until called with nil
func (b *Backend) FailKill(id types.SessionID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.killErr, id)
		return
	}
	b.killErr[id] = err
}

// AddSession registers a session without a spawn call
func (b *Backend) AddSession(meta types.SessionMetadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := meta
	b.sessions[meta.ID] = &m
	if uint32(meta.ID) > b.nextID {
		b.nextID = uint32(meta.ID)
	}
}

// Emit delivers v to every listener of topic synchronously
func (b *Backend) Emit(topic string, v interface{}) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("bridgetest: encode %s payload: %v", topic, err))
	}

	b.mu.Lock()
	fns := make([]bridge.Listener, 0, len(b.listeners[topic]))
	keys := make([]uint64, 0, len(b.listeners[topic]))
	for k := range b.listeners[topic] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fns = append(fns, b.listeners[topic][k])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// EmitOutput pushes an output chunk for id
func (b *Backend) EmitOutput(id types.SessionID, chunk string) {
	b.Emit(types.OutputTopic(id), chunk)
}

// EmitStatus pushes a status event
func (b *Backend) EmitStatus(id types.SessionID, status types.Status) {
	b.Emit(types.StatusTopic, types.StatusEvent{SessionID: id, Status: status})
}

// SpawnCalls returns the number of spawn commands received
func (b *Backend) SpawnCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spawnCalls
}

// PendingSpawns returns the number of spawn calls held at the gate
func (b *Backend) PendingSpawns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingSpawns
}

// PendingListens returns the number of listen calls held at the gate
func (b *Backend) PendingListens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingListen
}

// Kills returns the ids of every kill command received, in order
func (b *Backend) Kills() []types.SessionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.SessionID(nil), b.kills...)
}

// Writes returns every write command received
func (b *Backend) Writes() []types.WriteArgs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.WriteArgs(nil), b.writes...)
}

// Resizes returns every resize command received
func (b *Backend) Resizes() []types.ResizeArgs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.ResizeArgs(nil), b.resizes...)
}

// ListCalls returns the number of list commands received
func (b *Backend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lists
}

// Live returns the ids of sessions that have not been killed
func (b *Backend) Live() []types.SessionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]types.SessionID, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Listeners returns the number of attached listeners on topic
func (b *Backend) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[topic])
}

// ListenCalls returns the number of listen calls that completed
func (b *Backend) ListenCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listenCalls
}

// Unlistens returns the number of listeners removed
func (b *Backend) Unlistens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unlistens
}

// Invoke implements bridge.Transport
func (b *Backend) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	raw, err := sonic.Marshal(args)
	if err != nil {
		return nil, err
	}

	var result interface{}
	switch command {
	case types.CommandSpawn:
		var a types.SpawnArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			result, err = b.spawn(ctx, a.Mode)
		}
	case types.CommandKill:
		var a types.KillArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			err = b.kill(a.SessionID)
		}
	case types.CommandWrite:
		var a types.WriteArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			err = b.write(a)
		}
	case types.CommandResize:
		var a types.ResizeArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			err = b.resize(a)
		}
	case types.CommandList:
		result = b.list()
	case types.CommandUpdateStatus:
		var a types.UpdateStatusArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			result = b.updateStatus(a)
		}
	case types.CommandAssignBranch:
		var a types.AssignBranchArgs
		if err = sonic.Unmarshal(raw, &a); err == nil {
			result, err = b.assignBranch(a)
		}
	default:
		err = types.NewPtyError(types.CodeInvalidRequest, "unknown command: %s", command)
	}
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(result)
}

// Listen implements bridge.Transport
func (b *Backend) Listen(ctx context.Context, topic string, fn bridge.Listener) (func(), error) {
	b.mu.Lock()
	gate := b.listenGate
	b.pendingListen++
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingListen--
	b.listenCalls++

	b.nextListener++
	key := b.nextListener
	if b.listeners[topic] == nil {
		b.listeners[topic] = make(map[uint64]bridge.Listener)
	}
	b.listeners[topic][key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[topic], key)
			if len(b.listeners[topic]) == 0 {
				delete(b.listeners, topic)
			}
			b.unlistens++
		})
	}, nil
}

// spawn ignores ctx once past the gate, like a real backend that has
// already received the request
func (b *Backend) spawn(ctx context.Context, mode types.Mode) (types.SessionID, error) {
	b.mu.Lock()
	b.spawnCalls++
	gate := b.spawnGate
	b.pendingSpawns++
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingSpawns--

	if b.spawnErr != nil {
		return 0, b.spawnErr
	}
	b.nextID++
	id := types.SessionID(b.nextID)
	if mode == "" {
		mode = types.ModePlain
	}
	b.sessions[id] = &types.SessionMetadata{ID: id, Mode: mode, Status: types.StatusIdle}
	return id, nil
}

func (b *Backend) kill(id types.SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.kills = append(b.kills, id)
	if err, ok := b.killErr[id]; ok {
		return err
	}
	if _, ok := b.sessions[id]; !ok {
		return types.SessionNotFound(id)
	}
	delete(b.sessions, id)
	return nil
}

func (b *Backend) write(a types.WriteArgs) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = append(b.writes, a)
	if _, ok := b.sessions[a.SessionID]; !ok {
		return types.SessionNotFound(a.SessionID)
	}
	return nil
}

func (b *Backend) resize(a types.ResizeArgs) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resizes = append(b.resizes, a)
	if _, ok := b.sessions[a.SessionID]; !ok {
		return types.SessionNotFound(a.SessionID)
	}
	return nil
}

func (b *Backend) list() []types.SessionMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lists++
	out := make([]types.SessionMetadata, 0, len(b.sessions))
	for _, meta := range b.sessions {
		out = append(out, *meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) updateStatus(a types.UpdateStatusArgs) bool {
	b.mu.Lock()
	meta, ok := b.sessions[a.SessionID]
	if ok {
		meta.Status = a.Status
	}
	b.mu.Unlock()

	if ok {
		b.EmitStatus(a.SessionID, a.Status)
	}
	return ok
}

func (b *Backend) assignBranch(a types.AssignBranchArgs) (types.SessionMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta, ok := b.sessions[a.SessionID]
	if !ok {
		return types.SessionMetadata{}, types.SessionNotFound(a.SessionID)
	}
	branch := a.Branch
	meta.Branch = &branch
	meta.WorktreePath = a.WorktreePath
	return *meta, nil
}
