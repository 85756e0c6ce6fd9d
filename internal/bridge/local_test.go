package bridge_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

func TestLocalTransportDrivesRealShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	hub := events.NewHub(events.Options{})
	manager := terminal.NewManager(terminal.Options{
		Shell:     "/bin/sh",
		KillGrace: 300 * time.Millisecond,
		KillPoll:  20 * time.Millisecond,
	}, hub, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		hub.Close()
	})

	b := bridge.New(bridge.NewLocalTransport(terminal.NewProvider(manager, nil), hub), nil, bridge.DefaultOptions())
	ctx := context.Background()

	id, err := b.Spawn(ctx, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var out strings.Builder
	sub := b.SubscribeOutput(ctx, id, func(chunk string) {
		mu.Lock()
		out.WriteString(chunk)
		mu.Unlock()
	})
	defer sub.Dispose()
	<-sub.Ready()
	require.True(t, sub.Active())

	b.Write(ctx, id, "echo local-$((20+22))\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(out.String(), "local-42")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.Kill(ctx, id))
	require.NoError(t, b.Kill(ctx, id))
	assert.Equal(t, 0, manager.Count())

	_, err = b.Spawn(ctx, nil)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = bridge.NewLocalTransport(terminal.NewProvider(manager, nil), hub).Invoke(cancelled, types.CommandList, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
