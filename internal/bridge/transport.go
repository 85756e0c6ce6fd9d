package bridge

import (
	"context"
	"encoding/json"
)

// Listener receives the raw payload of one pushed event
type Listener func(payload json.RawMessage)

// Transport carries commands and push topics to the backend
type Transport interface {
	// Invoke runs command with JSON-encodable args and returns the raw result
	Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error)
	// Listen attaches fn to topic. ctx bounds only the setup round trip;
	// the listener stays attached until the returned func is called.
	Listen(ctx context.Context, topic string, fn Listener) (unlisten func(), err error)
}
