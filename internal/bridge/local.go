package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// LocalTransport runs commands against an in-process backend
type LocalTransport struct {
	provider *terminal.Provider
	hub      *events.Hub
}

// NewLocalTransport wires a transport directly to provider and hub
func NewLocalTransport(provider *terminal.Provider, hub *events.Hub) *LocalTransport {
	return &LocalTransport{provider: provider, hub: hub}
}

// Invoke implements Transport
func (t *LocalTransport) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if args != nil {
		encoded, err := sonic.Marshal(args)
		if err != nil {
			return nil, types.NewPtyError(types.CodeInvalidRequest, "encode %s args: %v", command, err)
		}
		raw = encoded
	}

	result, err := t.provider.Execute(ctx, command, raw)
	if err != nil {
		return nil, err
	}

	data, err := sonic.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", command, err)
	}
	return data, nil
}

// Listen implements Transport
func (t *LocalTransport) Listen(ctx context.Context, topic string, fn Listener) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cancel := t.hub.Subscribe(topic, events.Handler(fn))
	return cancel, nil
}
