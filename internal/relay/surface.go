package relay

import (
	"context"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Surface is a terminal view for one session
type Surface interface {
	// Write renders a chunk of session output
	Write(chunk string)
	// OnInput registers fn for local keystrokes; the returned func detaches it
	OnInput(fn func(data string)) (detach func())
	// OnResize registers fn for local size changes; the returned func detaches it
	OnResize(fn func(rows, cols uint16)) (detach func())
	// Dispose destroys the surface
	Dispose()
}

// SurfaceFactory builds the surface for a session
type SurfaceFactory func(id types.SessionID) (Surface, error)

// Commander is the part of the bridge a relay drives
type Commander interface {
	Write(ctx context.Context, id types.SessionID, data string)
	Resize(ctx context.Context, id types.SessionID, rows, cols uint16)
	SubscribeOutput(ctx context.Context, id types.SessionID, onData func(chunk string)) *bridge.Subscription
}
