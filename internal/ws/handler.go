package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/tracing"
)

const (
	writeTimeout = 10 * time.Second
	maxFrameSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // loopback only
	},
}

// Executor runs one backend command
type Executor interface {
	Execute(ctx context.Context, command string, args json.RawMessage) (interface{}, error)
}

// Handler manages WebSocket connections
type Handler struct {
	executor Executor
	hub      *events.Hub
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
}

// NewHandler creates a new WebSocket handler
func NewHandler(executor Executor, hub *events.Hub, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		executor: executor,
		hub:      hub,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithTracer records a span per invoke frame
func (h *Handler) WithTracer(tracer *tracing.Tracer) *Handler {
	h.tracer = tracer
	return h
}

// HandleConnection upgrades the request and serves frames until the peer leaves
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	conn := newConn(ctx, uuid.NewString(), ws, h)

	h.metrics.IncWSConnections()
	h.logger.Debug("WebSocket connected", zap.String("conn", conn.id))

	conn.serve()

	cancel()
	conn.close()
	h.metrics.DecWSConnections()
	h.logger.Debug("WebSocket disconnected", zap.String("conn", conn.id))
}
