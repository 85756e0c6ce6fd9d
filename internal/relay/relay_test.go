package relay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/bridge/bridgetest"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

type fakeSurface struct {
	mu       sync.Mutex
	id       types.SessionID
	writes   []string
	input    func(string)
	resize   func(uint16, uint16)
	steps    []string
	disposed bool

	// Listeners still attached on the output topic when Dispose ran
	listenersAtDispose int
	backend            *bridgetest.Backend
}

func (s *fakeSurface) Write(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		panic("write to disposed surface")
	}
	s.writes = append(s.writes, chunk)
}

func (s *fakeSurface) OnInput(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = fn
	return func() { s.step("detach-input") }
}

func (s *fakeSurface) OnResize(fn func(uint16, uint16)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resize = fn
	return func() { s.step("detach-resize") }
}

func (s *fakeSurface) Dispose() {
	listeners := s.backend.Listeners(types.OutputTopic(s.id))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.listenersAtDispose = listeners
	s.steps = append(s.steps, "dispose")
}

func (s *fakeSurface) step(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, name)
}

func (s *fakeSurface) typeKeys(data string) {
	s.mu.Lock()
	fn := s.input
	s.mu.Unlock()
	fn(data)
}

func (s *fakeSurface) setSize(rows, cols uint16) {
	s.mu.Lock()
	fn := s.resize
	s.mu.Unlock()
	fn(rows, cols)
}

func (s *fakeSurface) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

type fixture struct {
	backend  *bridgetest.Backend
	bridge   *bridge.Bridge
	mu       sync.Mutex
	surfaces map[types.SessionID]*fakeSurface
}

func newFixture() *fixture {
	backend := bridgetest.New()
	return &fixture{
		backend:  backend,
		bridge:   bridge.New(backend, nil, bridge.DefaultOptions()),
		surfaces: make(map[types.SessionID]*fakeSurface),
	}
}

func (f *fixture) factory(id types.SessionID) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSurface{id: id, backend: f.backend}
	f.surfaces[id] = s
	return s, nil
}

func (f *fixture) surface(id types.SessionID) *fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[id]
}

func (f *fixture) activate(t *testing.T, id types.SessionID) *Relay {
	t.Helper()
	r, err := Activate(context.Background(), id, f.bridge, f.factory, nil)
	require.NoError(t, err)
	return r
}

func (f *fixture) waitListening(t *testing.T, id types.SessionID) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.backend.Listeners(types.OutputTopic(id)) == 1
	}, time.Second, time.Millisecond)
}

func TestRelayWiresAllFlows(t *testing.T) {
	f := newFixture()
	id, err := f.bridge.Spawn(context.Background(), nil)
	require.NoError(t, err)

	r := f.activate(t, id)
	defer r.Deactivate()
	f.waitListening(t, id)

	s := f.surface(id)
	s.typeKeys("ls\n")
	s.setSize(30, 100)
	f.backend.EmitOutput(id, "file.txt\n")

	assert.Equal(t, []types.WriteArgs{{SessionID: id, Data: "ls\n"}}, f.backend.Writes())
	assert.Equal(t, []types.ResizeArgs{{SessionID: id, Rows: 30, Cols: 100}}, f.backend.Resizes())
	assert.Equal(t, []string{"file.txt\n"}, s.written())
}

func TestDeactivateOrdering(t *testing.T) {
	f := newFixture()
	r := f.activate(t, 1)
	f.waitListening(t, 1)

	r.Deactivate()
	r.Deactivate()

	s := f.surface(1)
	assert.Equal(t, []string{"detach-input", "detach-resize", "dispose"}, s.steps)
	assert.Equal(t, 0, s.listenersAtDispose)

	// Would panic if it reached the disposed surface
	f.backend.EmitOutput(1, "late")
	assert.Empty(t, s.written())
}

func TestDeactivateBeforeSubscriptionResolves(t *testing.T) {
	f := newFixture()
	release := f.backend.HoldListens()

	r := f.activate(t, 1)
	require.Eventually(t, func() bool { return f.backend.PendingListens() == 1 }, time.Second, time.Millisecond)

	r.Deactivate()
	release()

	require.Eventually(t, func() bool { return f.backend.Unlistens() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, f.backend.Listeners(types.OutputTopic(1)))

	f.backend.EmitOutput(1, "late")
	assert.Empty(t, f.surface(1).written())
}

func TestInputAfterDeactivateIsDropped(t *testing.T) {
	f := newFixture()
	r := f.activate(t, 1)
	s := f.surface(1)

	r.Deactivate()
	s.typeKeys("exit\n")
	s.setSize(10, 10)

	assert.Empty(t, f.backend.Writes())
	assert.Empty(t, f.backend.Resizes())
}

func TestActivateSurfaceFailure(t *testing.T) {
	f := newFixture()
	boom := errors.New("no container")

	_, err := Activate(context.Background(), 1, f.bridge, func(types.SessionID) (Surface, error) {
		return nil, boom
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.backend.ListenCalls())
}

func TestPoolSync(t *testing.T) {
	f := newFixture()
	pool := NewPool(context.Background(), f.bridge, f.factory, nil)

	pool.Sync([]types.SessionID{1, 2})
	assert.Equal(t, []types.SessionID{1, 2}, pool.IDs())
	first, ok := pool.Relay(1)
	require.True(t, ok)

	pool.Sync([]types.SessionID{2, 3})
	assert.Equal(t, []types.SessionID{2, 3}, pool.IDs())
	assert.True(t, f.surface(1).disposed)
	assert.Equal(t, types.SessionID(1), first.ID())

	pool.Close()
	assert.Empty(t, pool.IDs())
	assert.True(t, f.surface(2).disposed)
	assert.True(t, f.surface(3).disposed)

	pool.Sync([]types.SessionID{4})
	assert.Empty(t, pool.IDs())
}

func TestStreamSurfacePrefixesLines(t *testing.T) {
	var out bytes.Buffer
	factory := NewStreamFactory(&out)

	s, err := factory(7)
	require.NoError(t, err)

	s.Write("hello ")
	s.Write("world\nsecond")
	s.Write(" line\n")

	assert.Equal(t, "[7] hello world\n[7] second line\n", out.String())

	var got []string
	stream := s.(*StreamSurface)
	detach := s.OnInput(func(data string) { got = append(got, data) })
	stream.Input("pwd\n")
	detach()
	stream.Input("ignored\n")
	assert.Equal(t, []string{"pwd\n"}, got)

	s.Dispose()
	s.Write("after\n")
	assert.NotContains(t, out.String(), "after")
}
