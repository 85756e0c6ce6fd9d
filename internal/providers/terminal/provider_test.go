package terminal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

func TestProviderDispatchesCommands(t *testing.T) {
	m, _ := newTestManager(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	p := NewProvider(m, metrics)
	ctx := context.Background()

	result, err := p.Execute(ctx, types.CommandSpawn, nil)
	require.NoError(t, err)
	id, ok := result.(types.SessionID)
	require.True(t, ok)
	assert.Equal(t, types.SessionID(1), id)

	_, err = p.Execute(ctx, types.CommandWrite, json.RawMessage(`{"session_id":1,"data":"true\n"}`))
	assert.NoError(t, err)

	_, err = p.Execute(ctx, types.CommandResize, json.RawMessage(`{"session_id":1,"rows":30,"cols":100}`))
	assert.NoError(t, err)

	list, err := p.Execute(ctx, types.CommandList, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	changed, err := p.Execute(ctx, types.CommandUpdateStatus, json.RawMessage(`{"session_id":7,"status":"idle"}`))
	require.NoError(t, err)
	assert.Equal(t, false, changed)

	_, err = p.Execute(ctx, types.CommandKill, json.RawMessage(`{"session_id":1}`))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Count())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandCalls.WithLabelValues(types.CommandSpawn, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandCalls.WithLabelValues(types.CommandKill, "success")))
}

func TestProviderModeAndBranch(t *testing.T) {
	m, _ := newTestManager(t)
	p := NewProvider(m, nil)
	ctx := context.Background()

	result, err := p.Execute(ctx, types.CommandSpawn, json.RawMessage(`{"cwd":null,"mode":"gemini"}`))
	require.NoError(t, err)
	id := result.(types.SessionID)

	result, err = p.Execute(ctx, types.CommandAssignBranch,
		json.RawMessage(`{"session_id":`+id.String()+`,"branch":"feat/layout","worktree_path":null}`))
	require.NoError(t, err)
	meta, ok := result.(types.SessionMetadata)
	require.True(t, ok)
	assert.Equal(t, types.ModeGemini, meta.Mode)
	require.NotNil(t, meta.Branch)
	assert.Equal(t, "feat/layout", *meta.Branch)
	assert.Nil(t, meta.WorktreePath)

	assert.Contains(t, p.Commands(), types.CommandAssignBranch)
}

func TestProviderRejectsBadInput(t *testing.T) {
	m, _ := newTestManager(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	p := NewProvider(m, metrics)
	ctx := context.Background()

	_, err := p.Execute(ctx, "reboot", nil)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)

	_, err = p.Execute(ctx, types.CommandWrite, json.RawMessage(`{"session_id":"one"}`))
	assert.ErrorIs(t, err, types.ErrInvalidRequest)

	_, err = p.Execute(ctx, types.CommandKill, json.RawMessage(`{"session_id":3}`))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandCalls.WithLabelValues(types.CommandKill, "error")))
	assert.ElementsMatch(t, []string{
		types.CommandSpawn, types.CommandWrite, types.CommandResize,
		types.CommandKill, types.CommandList, types.CommandUpdateStatus,
	}, p.Commands())
}
