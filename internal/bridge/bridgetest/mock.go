package bridgetest

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
)

// MockTransport is a testify mock of bridge.Transport
type MockTransport struct {
	mock.Mock
}

var _ bridge.Transport = (*MockTransport)(nil)

// Invoke implements bridge.Transport
func (m *MockTransport) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	ret := m.Called(ctx, command, args)
	var raw json.RawMessage
	if v := ret.Get(0); v != nil {
		raw = v.(json.RawMessage)
	}
	return raw, ret.Error(1)
}

// Listen implements bridge.Transport
func (m *MockTransport) Listen(ctx context.Context, topic string, fn bridge.Listener) (func(), error) {
	ret := m.Called(ctx, topic, fn)
	var unlisten func()
	if v := ret.Get(0); v != nil {
		unlisten = v.(func())
	}
	return unlisten, ret.Error(1)
}
