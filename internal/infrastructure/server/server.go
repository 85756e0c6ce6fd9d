package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/maestro/backend/internal/events"
	handlers "github.com/GriffinCanCode/maestro/backend/internal/http"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/maestro/backend/internal/middleware"
	"github.com/GriffinCanCode/maestro/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/maestro/backend/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	provider *terminal.Provider
	hub      *events.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	tracer   *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing PTY backend",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("shell", cfg.Terminal.Shell),
		zap.Duration("kill_grace", cfg.Terminal.KillGrace.Duration),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	hub := events.NewHub(events.Options{Logger: logger.Component("events")})
	manager := terminal.NewManager(
		terminal.OptionsFromConfig(cfg.Terminal),
		hub,
		logger.Component("pty"),
		metrics,
	)
	provider := terminal.NewProvider(manager, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	tracer := tracing.New("pty-backend", logger.Component("tracing"))

	httpLogger := logger.Component("http")
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(httpLogger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.Logger(httpLogger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
		logger.Info("Rate limiting enabled",
			zap.Int("rps", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst),
		)
	}

	h := handlers.NewHandlers(provider, hub)
	wsHandler := ws.NewHandler(provider, hub, logger.Component("ws"), metrics).WithTracer(tracer)

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	sessions := router.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.POST("", h.SpawnSession)
	sessions.DELETE("/:id", h.KillSession)
	sessions.PUT("/:id/status", h.UpdateStatus)
	sessions.PUT("/:id/branch", h.AssignBranch)

	router.POST("/invoke/:command", h.Invoke)
	router.GET("/ws", wsHandler.HandleConnection)

	return &Server{
		router:   router,
		http:     &http.Server{Addr: cfg.Server.Addr(), Handler: router, ReadHeaderTimeout: 10 * time.Second},
		provider: provider,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: reg,
		tracer:   tracer,
	}, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub behind the push topics
func (s *Server) Hub() *events.Hub {
	return s.hub
}

// Manager returns the session manager
func (s *Server) Manager() *terminal.Manager {
	return s.provider.Manager()
}

// Run listens on the configured address until Shutdown
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then kills every session
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var g errgroup.Group
	g.Go(func() error {
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.provider.Manager().Shutdown(ctx); err != nil {
			return fmt.Errorf("session shutdown: %w", err)
		}
		return nil
	})
	err := g.Wait()

	s.hub.Close()
	s.tracer.Close()
	_ = s.logger.Sync()
	return err
}
