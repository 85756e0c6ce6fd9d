package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

type conn struct {
	id  string
	ctx context.Context
	ws  *websocket.Conn
	h   *Handler

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[string]func()
	closed    bool

	inflight sync.WaitGroup
}

func newConn(ctx context.Context, id string, ws *websocket.Conn, h *Handler) *conn {
	ws.SetReadLimit(maxFrameSize)
	return &conn{
		id:        id,
		ctx:       ctx,
		ws:        ws,
		h:         h,
		listeners: make(map[string]func()),
	}
}

func (c *conn) serve() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.h.logger.Debug("WebSocket read ended", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}

		var frame types.Frame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			c.reply(types.Frame{
				Type:  types.FrameResult,
				Error: types.NewPtyError(types.CodeInvalidRequest, "malformed frame: %v", err),
			})
			continue
		}
		c.h.metrics.RecordWSMessage("in", frame.Type)
		c.dispatch(frame)
	}
}

func (c *conn) dispatch(frame types.Frame) {
	switch frame.Type {
	case types.FrameInvoke:
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.invoke(frame)
		}()
	case types.FrameListen:
		c.listen(frame)
	case types.FrameUnlisten:
		c.unlisten(frame)
	case types.FramePing:
		c.reply(types.Frame{Type: types.FramePong, ID: frame.ID})
	default:
		c.reply(types.Frame{
			Type:  types.FrameResult,
			ID:    frame.ID,
			Error: types.NewPtyError(types.CodeInvalidRequest, "unknown frame type: %q", frame.Type),
		})
	}
}

func (c *conn) invoke(frame types.Frame) {
	ctx := tracing.WithTrace(c.ctx, tracing.TraceID(frame.Trace))
	var span *tracing.Span
	if c.h.tracer != nil {
		span, ctx = c.h.tracer.StartSpan(ctx, frame.Command)
		span.SetTag("ws.conn", c.id)
		defer func() {
			span.Finish()
			c.h.tracer.Submit(span)
		}()
	}

	result, err := c.h.executor.Execute(ctx, frame.Command, frame.Args)
	if err != nil {
		if span != nil {
			span.SetError(err)
		}
		c.fail(frame.ID, err)
		return
	}

	data, err := sonic.Marshal(result)
	if err != nil {
		c.fail(frame.ID, err)
		return
	}
	c.reply(types.Frame{Type: types.FrameResult, ID: frame.ID, Data: data})
}

func (c *conn) listen(frame types.Frame) {
	if frame.ID == "" || frame.Topic == "" {
		c.fail(frame.ID, types.NewPtyError(types.CodeInvalidRequest, "listen needs id and topic"))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, exists := c.listeners[frame.ID]; exists {
		c.mu.Unlock()
		c.fail(frame.ID, types.NewPtyError(types.CodeInvalidRequest, "listener %s already registered", frame.ID))
		return
	}

	listenID, topic := frame.ID, frame.Topic
	c.listeners[listenID] = c.h.hub.Subscribe(topic, events.Handler(func(payload json.RawMessage) {
		c.reply(types.Frame{Type: types.FrameEvent, ID: listenID, Topic: topic, Payload: payload})
	}))
	c.mu.Unlock()

	c.reply(types.Frame{Type: types.FrameResult, ID: frame.ID})
}

func (c *conn) unlisten(frame types.Frame) {
	c.mu.Lock()
	cancel, ok := c.listeners[frame.ID]
	delete(c.listeners, frame.ID)
	c.mu.Unlock()

	// Unknown ids are fine: the listener may already be gone
	if ok {
		cancel()
	}
	c.reply(types.Frame{Type: types.FrameResult, ID: frame.ID})
}

func (c *conn) fail(id string, err error) {
	c.reply(types.Frame{Type: types.FrameResult, ID: id, Error: types.ToPtyError(err)})
}

func (c *conn) reply(frame types.Frame) {
	data, err := sonic.Marshal(frame)
	if err != nil {
		c.h.logger.Error("Failed to encode frame", zap.String("conn", c.id), zap.Error(err))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			c.h.logger.Debug("WebSocket write failed", zap.String("conn", c.id), zap.Error(err))
		}
		return
	}
	c.h.metrics.RecordWSMessage("out", frame.Type)
}

func (c *conn) close() {
	c.mu.Lock()
	c.closed = true
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, cancel := range listeners {
		cancel()
	}
	c.inflight.Wait()
	_ = c.ws.Close()
}
