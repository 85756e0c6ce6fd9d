package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

const writeTimeout = 10 * time.Second

// ErrClosed is returned for calls on a closed or broken connection
var ErrClosed = errors.New("client: connection closed")

// Transport is a bridge.Transport over the backend WebSocket
type Transport struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan types.Frame
	listeners map[string]bridge.Listener
	err       error

	done chan struct{}
}

var _ bridge.Transport = (*Transport)(nil)

// WebSocketURL derives the /ws endpoint from an http(s) base URL
func WebSocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Dial connects to the backend WebSocket at url
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Transport, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newTransport(ws, logger), nil
}

func newTransport(ws *websocket.Conn, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transport{
		ws:        ws,
		logger:    logger,
		pending:   make(map[string]chan types.Frame),
		listeners: make(map[string]bridge.Listener),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Invoke implements bridge.Transport
func (t *Transport) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	frame := types.Frame{
		Type:    types.FrameInvoke,
		ID:      uuid.NewString(),
		Command: command,
		Trace:   string(tracing.GetTraceID(ctx)),
	}
	if args != nil {
		encoded, err := sonic.Marshal(args)
		if err != nil {
			return nil, types.NewPtyError(types.CodeInvalidRequest, "encode %s args: %v", command, err)
		}
		frame.Args = encoded
	}

	reply, err := t.roundTrip(ctx, frame)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Data, nil
}

// Listen implements bridge.Transport
func (t *Transport) Listen(ctx context.Context, topic string, fn bridge.Listener) (func(), error) {
	id := uuid.NewString()

	// Registered before the request so events racing the ack are kept
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return nil, t.err
	}
	t.listeners[id] = fn
	t.mu.Unlock()

	reply, err := t.roundTrip(ctx, types.Frame{Type: types.FrameListen, ID: id, Topic: topic})
	if err == nil && reply.Error != nil {
		err = reply.Error
	}
	if err != nil {
		t.dropListener(id)
		// The listen frame may already be registered server-side
		t.unlisten(id, topic)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.dropListener(id)
			t.unlisten(id, topic)
		})
	}, nil
}

func (t *Transport) unlisten(id, topic string) {
	if err := t.send(types.Frame{Type: types.FrameUnlisten, ID: id}); err != nil && !errors.Is(err, ErrClosed) {
		t.logger.Warn("Unlisten failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Ping checks the connection round trip
func (t *Transport) Ping(ctx context.Context) error {
	_, err := t.roundTrip(ctx, types.Frame{Type: types.FramePing, ID: uuid.NewString()})
	return err
}

// Done is closed when the connection is gone
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the connection ended, or nil while it is open
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close shuts the connection and fails every pending call
func (t *Transport) Close() error {
	t.writeMu.Lock()
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := t.ws.Close()
	<-t.done
	return err
}

func (t *Transport) roundTrip(ctx context.Context, frame types.Frame) (types.Frame, error) {
	ch := make(chan types.Frame, 1)

	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return types.Frame{}, t.err
	}
	t.pending[frame.ID] = ch
	t.mu.Unlock()

	if err := t.send(frame); err != nil {
		t.forget(frame.ID)
		return types.Frame{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		t.forget(frame.ID)
		return types.Frame{}, ctx.Err()
	case <-t.done:
		return types.Frame{}, t.Err()
	}
}

func (t *Transport) send(frame types.Frame) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	_ = t.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (t *Transport) readLoop() {
	var cause error
	defer func() { t.shutdown(cause) }()

	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			cause = err
			return
		}

		var frame types.Frame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case types.FrameResult, types.FramePong:
			t.mu.Lock()
			ch, ok := t.pending[frame.ID]
			delete(t.pending, frame.ID)
			t.mu.Unlock()
			if ok {
				ch <- frame
			}
		case types.FrameEvent:
			t.mu.Lock()
			fn := t.listeners[frame.ID]
			t.mu.Unlock()
			if fn != nil {
				fn(frame.Payload)
			}
		default:
			t.logger.Debug("Ignoring frame", zap.String("type", frame.Type))
		}
	}
}

func (t *Transport) shutdown(cause error) {
	t.mu.Lock()
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) || errors.Is(cause, websocket.ErrCloseSent) {
		t.err = ErrClosed
	} else {
		t.err = fmt.Errorf("%w: %v", ErrClosed, cause)
	}
	t.pending = make(map[string]chan types.Frame)
	t.listeners = make(map[string]bridge.Listener)
	t.mu.Unlock()

	close(t.done)
}

func (t *Transport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *Transport) dropListener(id string) {
	t.mu.Lock()
	delete(t.listeners, id)
	t.mu.Unlock()
}
